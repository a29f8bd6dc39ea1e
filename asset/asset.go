// Package asset implements the Artifact Store (C2): typed CRUD over
// MetricFile, DashboardFile, ReportFile, Collection, and Chat assets, with a
// version history that supports both overwrite-in-place and
// append-new-version semantics, and Chat public share links.
package asset

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumenanalytics/agentd/permission"
)

// Type is the asset's tagged variant. Permission operations use
// permission.AssetType; this is the richer asset-package enum used for
// content typing (they share string values).
type Type = permission.AssetType

const (
	TypeMetricFile    = permission.AssetTypeMetricFile
	TypeDashboardFile = permission.AssetTypeDashboardFile
	TypeReportFile    = permission.AssetTypeReportFile
	TypeCollection    = permission.AssetTypeCollection
	TypeChat          = permission.AssetTypeChat
)

// Version is a single entry in a VersionHistory.
type Version struct {
	VersionNumber int
	UpdatedAt     time.Time
	Content       []byte // canonical YAML-equivalent content, type-specific
}

// VersionHistory is a dense 1-based sequence of Versions with a single
// latest entry. Callers must never construct the map directly; use
// NewVersionHistory, AddVersion, and UpdateLatestVersion so the dense
// 1-based invariant always holds.
type VersionHistory struct {
	versions map[int]Version
}

// ErrVersionNotFound is returned by GetVersion when the requested version
// number does not exist.
var ErrVersionNotFound = errors.New("asset: version not found")

// NewVersionHistory creates a VersionHistory containing only version 1.
func NewVersionHistory(content []byte) *VersionHistory {
	vh := &VersionHistory{versions: map[int]Version{}}
	vh.versions[1] = Version{VersionNumber: 1, UpdatedAt: time.Now().UTC(), Content: content}
	return vh
}

// NewVersionHistoryFromVersions reconstructs a VersionHistory from persisted
// versions, for use by Store implementations decoding from the database. It
// does not itself enforce the dense-sequence invariant; callers that need to
// validate persisted data should call IsDense afterward.
func NewVersionHistoryFromVersions(versions []Version) *VersionHistory {
	vh := &VersionHistory{versions: map[int]Version{}}
	for _, v := range versions {
		vh.versions[v.VersionNumber] = v
	}
	return vh
}

// AddVersion appends a new version at max+1 (or 1 if empty). This is the
// "checkpoint" path used for user-visible saves.
func (vh *VersionHistory) AddVersion(content []byte) Version {
	next := 1
	if latest, ok := vh.Latest(); ok {
		next = latest.VersionNumber + 1
	}
	v := Version{VersionNumber: next, UpdatedAt: time.Now().UTC(), Content: content}
	vh.versions[next] = v
	return v
}

// UpdateLatestVersion overwrites the content of the current latest version
// in place, for in-progress edits that should not create a new checkpoint.
// If the history is empty this behaves like AddVersion(content) at version 1.
func (vh *VersionHistory) UpdateLatestVersion(content []byte) Version {
	latest, ok := vh.Latest()
	if !ok {
		return vh.AddVersion(content)
	}
	v := Version{VersionNumber: latest.VersionNumber, UpdatedAt: time.Now().UTC(), Content: content}
	vh.versions[v.VersionNumber] = v
	return v
}

// GetVersion returns the version numbered n, or ErrVersionNotFound.
func (vh *VersionHistory) GetVersion(n int) (Version, error) {
	v, ok := vh.versions[n]
	if !ok {
		return Version{}, ErrVersionNotFound
	}
	return v, nil
}

// Latest returns the version with the highest version number, and false if
// the history is empty.
func (vh *VersionHistory) Latest() (Version, bool) {
	if len(vh.versions) == 0 {
		return Version{}, false
	}
	max := 0
	for n := range vh.versions {
		if n > max {
			max = n
		}
	}
	return vh.versions[max], true
}

// VersionNumbers returns the dense sequence of version numbers present, in
// ascending order. Used by tests to assert the 1-based-dense invariant.
func (vh *VersionHistory) VersionNumbers() []int {
	out := make([]int, 0, len(vh.versions))
	for n := range vh.versions {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// IsDense reports whether the version numbers form an unbroken 1..N
// sequence, the invariant spec.md requires VersionHistory to maintain at
// all times.
func (vh *VersionHistory) IsDense() bool {
	nums := vh.VersionNumbers()
	for i, n := range nums {
		if n != i+1 {
			return false
		}
	}
	return true
}

// Asset is the common envelope for every asset type; Content is the
// type-specific YAML-equivalent payload and is versioned via History.
type Asset struct {
	ID             string
	OrganizationID string
	Type           Type
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
	History        *VersionHistory

	// Chat-only fields; zero-valued for non-Chat assets.
	Chat *ChatMeta
}

// ChatMeta holds the Chat-specific metadata layered on top of an Asset whose
// Content is the persisted AgentThread.
type ChatMeta struct {
	Title                 string
	MostRecentFileID      string
	MostRecentFileType    Type
	MostRecentFileVersion int
	ShareLink             *ShareLink
}

// ShareLink is a Chat's public-access configuration. PasswordHash is a
// bcrypt hash (see DESIGN.md's Open Question decision); the plaintext
// password is never stored.
type ShareLink struct {
	PubliclyAccessible bool
	ExpiresAt          *time.Time
	PasswordHash       []byte
	EnabledBy          string
}

// NewAsset constructs an Asset with a fresh id and a version-1 history
// seeded with content, ready for Store.Create to persist alongside the
// creator's Owner permission.
func NewAsset(organizationID string, assetType Type, createdBy string, content []byte) (*Asset, error) {
	if err := validateCreateType(assetType); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Asset{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Type:           assetType,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
		History:        NewVersionHistory(content),
	}, nil
}

func validateCreateType(t Type) error {
	switch t {
	case TypeMetricFile, TypeDashboardFile, TypeReportFile, TypeCollection, TypeChat:
		return nil
	default:
		return fmt.Errorf("asset: unsupported asset type %q", t)
	}
}

// ErrUnsupportedAssetType is returned by operations (such as message-to-file
// association) restricted to a subset of asset types.
var ErrUnsupportedAssetType = errors.New("asset: unsupported asset type")

// ErrShareLinkNotPublic is returned by CheckSharePassword when the share link
// is not currently publicly accessible, or has expired.
var ErrShareLinkNotPublic = errors.New("asset: share link is not publicly accessible")

// ErrWrongSharePassword is returned by CheckSharePassword when the supplied
// password does not match the share link's stored hash.
var ErrWrongSharePassword = errors.New("asset: wrong share link password")

// SetSharePassword hashes password with bcrypt and stores it on the share
// link. The plaintext is never retained.
func (sl *ShareLink) SetSharePassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("asset: hash share password: %w", err)
	}
	sl.PasswordHash = hash
	return nil
}

// CheckSharePassword validates password against the share link's stored
// bcrypt hash, also enforcing PubliclyAccessible and ExpiresAt. A share link
// with no PasswordHash set accepts any password once public/unexpired.
func (sl *ShareLink) CheckSharePassword(password string) error {
	if sl == nil || !sl.PubliclyAccessible {
		return ErrShareLinkNotPublic
	}
	if sl.ExpiresAt != nil && time.Now().UTC().After(*sl.ExpiresAt) {
		return ErrShareLinkNotPublic
	}
	if len(sl.PasswordHash) == 0 {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(sl.PasswordHash, []byte(password)); err != nil {
		return ErrWrongSharePassword
	}
	return nil
}

// MessageFileAssetTypes are the only asset types that may be associated with
// a chat message via messages-to-files linking (spec.md §6); ReportFile,
// Collection, and Chat are not linkable this way.
var MessageFileAssetTypes = []Type{TypeMetricFile, TypeDashboardFile}

// ValidateMessageFileAssetType rejects association of a message with an
// asset type other than MetricFile/DashboardFile.
func ValidateMessageFileAssetType(t Type) error {
	for _, allowed := range MessageFileAssetTypes {
		if t == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedAssetType, t)
}
