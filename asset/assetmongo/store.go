// Package assetmongo implements asset.Store against MongoDB, calling
// *mongo.Collection methods directly (no wrapper interface), as
// permissionmongo does.
package assetmongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lumenanalytics/agentd/asset"
	"github.com/lumenanalytics/agentd/permission"
)

const (
	defaultAssetsCollection = "assets"
	defaultOpTimeout        = 5 * time.Second
	defaultPageSize         = 25
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client           *mongodriver.Client
	Database         string
	AssetsCollection string
	// Kernel grants the creator's Owner permission on Create and backs the
	// per-id CanEdit check in SoftDeleteBulk.
	Kernel  *permission.Kernel
	Timeout time.Duration
}

// Store implements asset.Store against a MongoDB collection.
type Store struct {
	assets  *mongodriver.Collection
	kernel  *permission.Kernel
	timeout time.Duration
}

// New constructs a Store, creating the indexes List and Get rely on.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("assetmongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("assetmongo: database name is required")
	}
	if opts.Kernel == nil {
		return nil, errors.New("assetmongo: kernel is required")
	}
	collName := opts.AssetsCollection
	if collName == "" {
		collName = defaultAssetsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		assets:  db.Collection(collName),
		kernel:  opts.Kernel,
		timeout: timeout,
	}

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.ensureIndexes(ictx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.assets.Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{Keys: bson.D{{Key: "asset_type", Value: 1}, {Key: "created_by", Value: 1}}},
		{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "deleted_at", Value: 1}}},
	})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

type versionDoc struct {
	VersionNumber int       `bson:"version_number"`
	UpdatedAt     time.Time `bson:"updated_at"`
	Content       []byte    `bson:"content"`
}

type shareLinkDoc struct {
	PubliclyAccessible bool       `bson:"publicly_accessible"`
	ExpiresAt          *time.Time `bson:"expires_at,omitempty"`
	PasswordHash       []byte     `bson:"password_hash,omitempty"`
	EnabledBy          string     `bson:"enabled_by,omitempty"`
}

type chatMetaDoc struct {
	Title                 string        `bson:"title"`
	MostRecentFileID      string        `bson:"most_recent_file_id,omitempty"`
	MostRecentFileType    string        `bson:"most_recent_file_type,omitempty"`
	MostRecentFileVersion int           `bson:"most_recent_file_version,omitempty"`
	ShareLink             *shareLinkDoc `bson:"share_link,omitempty"`
}

type assetDoc struct {
	ID             string       `bson:"_id"`
	OrganizationID string       `bson:"organization_id"`
	AssetType      string       `bson:"asset_type"`
	CreatedBy      string       `bson:"created_by"`
	CreatedAt      time.Time    `bson:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at"`
	DeletedAt      *time.Time   `bson:"deleted_at,omitempty"`
	Versions       []versionDoc `bson:"versions"`
	Chat           *chatMetaDoc `bson:"chat,omitempty"`
}

func toAssetDoc(a *asset.Asset) assetDoc {
	doc := assetDoc{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		AssetType:      string(a.Type),
		CreatedBy:      a.CreatedBy,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		DeletedAt:      a.DeletedAt,
	}
	if a.History != nil {
		for _, n := range a.History.VersionNumbers() {
			v, _ := a.History.GetVersion(n)
			doc.Versions = append(doc.Versions, versionDoc{
				VersionNumber: v.VersionNumber,
				UpdatedAt:     v.UpdatedAt,
				Content:       v.Content,
			})
		}
	}
	if a.Chat != nil {
		cd := &chatMetaDoc{
			Title:                 a.Chat.Title,
			MostRecentFileID:      a.Chat.MostRecentFileID,
			MostRecentFileType:    string(a.Chat.MostRecentFileType),
			MostRecentFileVersion: a.Chat.MostRecentFileVersion,
		}
		if a.Chat.ShareLink != nil {
			cd.ShareLink = &shareLinkDoc{
				PubliclyAccessible: a.Chat.ShareLink.PubliclyAccessible,
				ExpiresAt:          a.Chat.ShareLink.ExpiresAt,
				PasswordHash:       a.Chat.ShareLink.PasswordHash,
				EnabledBy:          a.Chat.ShareLink.EnabledBy,
			}
		}
		doc.Chat = cd
	}
	return doc
}

func (d assetDoc) toAsset() *asset.Asset {
	versions := make([]asset.Version, 0, len(d.Versions))
	for _, v := range d.Versions {
		versions = append(versions, asset.Version{
			VersionNumber: v.VersionNumber,
			UpdatedAt:     v.UpdatedAt,
			Content:       v.Content,
		})
	}
	a := &asset.Asset{
		ID:             d.ID,
		OrganizationID: d.OrganizationID,
		Type:           asset.Type(d.AssetType),
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		DeletedAt:      d.DeletedAt,
		History:        asset.NewVersionHistoryFromVersions(versions),
	}
	if d.Chat != nil {
		cm := &asset.ChatMeta{
			Title:                 d.Chat.Title,
			MostRecentFileID:      d.Chat.MostRecentFileID,
			MostRecentFileType:    asset.Type(d.Chat.MostRecentFileType),
			MostRecentFileVersion: d.Chat.MostRecentFileVersion,
		}
		if d.Chat.ShareLink != nil {
			cm.ShareLink = &asset.ShareLink{
				PubliclyAccessible: d.Chat.ShareLink.PubliclyAccessible,
				ExpiresAt:          d.Chat.ShareLink.ExpiresAt,
				PasswordHash:       d.Chat.ShareLink.PasswordHash,
				EnabledBy:          d.Chat.ShareLink.EnabledBy,
			}
		}
		a.Chat = cm
	}
	return a
}

// Create implements asset.Store. It inserts the asset document and grants
// the creator an Owner permission; the two writes are not in a single Mongo
// transaction (the teacher's Mongo stores do not use multi-document
// transactions either) but failure to grant leaves the asset merely
// inaccessible rather than corrupt, and is logged by the caller.
func (s *Store) Create(ctx context.Context, a *asset.Asset) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.assets.InsertOne(ctx, toAssetDoc(a)); err != nil {
		return err
	}
	_, err := s.kernel.CreateShare(ctx, a.ID, a.Type, a.CreatedBy, permission.IdentityUser, permission.RoleOwner, a.CreatedBy)
	return err
}

// Get implements asset.Store.
func (s *Store) Get(ctx context.Context, id string, assetType asset.Type) (*asset.Asset, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc assetDoc
	err := s.assets.FindOne(ctx, bson.M{
		"_id":        id,
		"asset_type": string(assetType),
		"deleted_at": bson.M{"$exists": false},
	}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, asset.ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toAsset(), nil
}

// UpdateContent implements asset.Store.
func (s *Store) UpdateContent(ctx context.Context, id string, assetType asset.Type, content []byte, appendVersion bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	a, err := s.Get(ctx, id, assetType)
	if err != nil {
		return err
	}
	if appendVersion {
		a.History.AddVersion(content)
	} else {
		a.History.UpdateLatestVersion(content)
	}
	a.UpdatedAt = time.Now().UTC()
	doc := toAssetDoc(a)
	_, err = s.assets.UpdateOne(ctx, bson.M{"_id": id, "asset_type": string(assetType)}, bson.M{
		"$set": bson.M{"versions": doc.Versions, "updated_at": doc.UpdatedAt},
	})
	return err
}

// UpdateChatMeta implements asset.Store.
func (s *Store) UpdateChatMeta(ctx context.Context, id string, meta asset.ChatMeta) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cd := chatMetaDoc{
		Title:                 meta.Title,
		MostRecentFileID:      meta.MostRecentFileID,
		MostRecentFileType:    string(meta.MostRecentFileType),
		MostRecentFileVersion: meta.MostRecentFileVersion,
	}
	if meta.ShareLink != nil {
		cd.ShareLink = &shareLinkDoc{
			PubliclyAccessible: meta.ShareLink.PubliclyAccessible,
			ExpiresAt:          meta.ShareLink.ExpiresAt,
			PasswordHash:       meta.ShareLink.PasswordHash,
			EnabledBy:          meta.ShareLink.EnabledBy,
		}
	}
	_, err := s.assets.UpdateOne(ctx, bson.M{"_id": id, "asset_type": string(asset.TypeChat)}, bson.M{
		"$set": bson.M{"chat": cd, "updated_at": time.Now().UTC()},
	})
	return err
}

// SoftDeleteBulk implements asset.Store, checking CanEdit+ per id via the
// Kernel before marking it deleted; ids the actor lacks access to (or that
// do not exist) are reported individually rather than aborting the batch.
func (s *Store) SoftDeleteBulk(ctx context.Context, ids []string, assetType asset.Type, actor string) ([]asset.BulkDeleteResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	results := make([]asset.BulkDeleteResult, 0, len(ids))
	now := time.Now().UTC()
	for _, id := range ids {
		role, err := s.kernel.EffectiveRole(ctx, id, assetType, actor, permission.IdentityUser)
		if err != nil {
			results = append(results, asset.BulkDeleteResult{ID: id, Err: err})
			continue
		}
		if !role.AtLeast(permission.RoleCanEdit) {
			results = append(results, asset.BulkDeleteResult{ID: id, Err: asset.ErrActorLacksEditAccess})
			continue
		}
		_, err = s.assets.UpdateOne(ctx, bson.M{"_id": id, "asset_type": string(assetType)}, bson.M{
			"$set": bson.M{"deleted_at": now, "updated_at": now},
		})
		results = append(results, asset.BulkDeleteResult{ID: id, Err: err})
	}
	return results, nil
}

// List implements asset.Store.
func (s *Store) List(ctx context.Context, userID string, filters asset.ListFilters, page, pageSize int) ([]asset.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	filter := bson.M{"deleted_at": bson.M{"$exists": false}}

	opts := options.Find().
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize)).
		SetSort(bson.D{{Key: "updated_at", Value: -1}})

	cur, err := s.assets.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []asset.Listing
	for cur.Next(ctx) {
		var doc assetDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		a := doc.toAsset()
		role, err := s.kernel.EffectiveRole(ctx, a.ID, a.Type, userID, permission.IdentityUser)
		if err != nil {
			return nil, err
		}
		if role == permission.RoleNone {
			continue
		}
		if filters.OwnedByMe && role != permission.RoleOwner {
			continue
		}
		if filters.SharedWithMe && role == permission.RoleOwner {
			continue
		}
		out = append(out, asset.Listing{Asset: *a, ActorRole: role})
	}
	return out, cur.Err()
}
