package asset

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumenanalytics/agentd/permission"
)

// ListFilters narrows Store.List. OwnedByMe and SharedWithMe are mutually
// informative (not exclusive): OwnedByMe selects rows where the caller's
// role is Owner, SharedWithMe selects rows where it is not.
type ListFilters struct {
	OwnedByMe    bool
	SharedWithMe bool
}

// Listing is one row of Store.List's result: the asset header plus the
// caller's effective role on it (never RoleNone, since List only returns
// assets the caller can see at all).
type Listing struct {
	Asset      Asset
	ActorRole  permission.Role
}

// BulkDeleteResult reports per-id outcome for Store.SoftDeleteBulk.
type BulkDeleteResult struct {
	ID  string
	Err error
}

// ErrActorLacksEditAccess is returned (per-id, inside BulkDeleteResult) when
// the actor does not hold CanEdit or above on an id passed to
// SoftDeleteBulk.
var ErrActorLacksEditAccess = errors.New("asset: actor lacks edit access")

// ErrAssetNotFound mirrors permission.ErrAssetNotFound for asset-store
// lookups that are not permission checks.
var ErrAssetNotFound = errors.New("asset: not found")

// Store is the persistence boundary for assets. Kernel (permission) checks
// are the caller's responsibility except where the contract explicitly
// folds them in (SoftDeleteBulk, List).
type Store interface {
	// Create inserts asset and grants its creator an Owner permission.
	// assetmongo.Store performs these as two separate writes, not as one
	// transaction.
	Create(ctx context.Context, a *Asset) error
	// Get returns the asset by id, or ErrAssetNotFound.
	Get(ctx context.Context, id string, assetType Type) (*Asset, error)
	// UpdateContent writes new content into the asset's version history,
	// appending a new version when appendVersion is true or overwriting the
	// latest version in place otherwise, and bumps UpdatedAt.
	UpdateContent(ctx context.Context, id string, assetType Type, content []byte, appendVersion bool) error
	// UpdateChatMeta overwrites a Chat asset's ChatMeta fields (title,
	// most-recent-file pointer, share link) in place, independent of its
	// versioned content.
	UpdateChatMeta(ctx context.Context, id string, meta ChatMeta) error
	// SoftDeleteBulk marks every id the actor holds CanEdit+ on as deleted,
	// returning one BulkDeleteResult per requested id (in the same order).
	// Ids the actor lacks sufficient access to are reported with
	// ErrActorLacksEditAccess rather than silently skipped.
	SoftDeleteBulk(ctx context.Context, ids []string, assetType Type, actor string) ([]BulkDeleteResult, error)
	// List returns a page of assets visible to user, combined with their
	// effective role, filtered by filters.
	List(ctx context.Context, userID string, filters ListFilters, page, pageSize int) ([]Listing, error)
}

// Service wires a Store and a permission.Kernel together to implement the
// full C2 contract, including the permission checks the bare Store leaves
// to callers.
type Service struct {
	store  Store
	kernel *permission.Kernel
}

// NewService constructs a Service.
func NewService(store Store, kernel *permission.Kernel) (*Service, error) {
	if store == nil {
		return nil, errors.New("asset: store is required")
	}
	if kernel == nil {
		return nil, errors.New("asset: kernel is required")
	}
	return &Service{store: store, kernel: kernel}, nil
}

// Create persists a new asset and grants its creator Owner.
func (s *Service) Create(ctx context.Context, a *Asset) error {
	return s.store.Create(ctx, a)
}

// Get returns the asset and the requester's effective role on it, or
// permission.ErrAssetNotFound/a permission error if access is insufficient.
func (s *Service) Get(ctx context.Context, id string, assetType Type, requesterID string, organizationID string) (*Asset, permission.Role, error) {
	a, err := s.store.Get(ctx, id, assetType)
	if err != nil {
		return nil, permission.RoleNone, err
	}
	role, err := s.kernel.EffectiveRole(ctx, id, assetType, requesterID, permission.IdentityUser)
	if err != nil {
		return nil, permission.RoleNone, err
	}
	if role == permission.RoleNone {
		admin, isAdmin, err := s.kernel.CheckAdminAccess(ctx, requesterID, organizationID)
		if err != nil {
			return nil, permission.RoleNone, err
		}
		if isAdmin {
			role = admin
		}
	}
	if role == permission.RoleNone {
		return nil, permission.RoleNone, permission.ErrAssetNotFound
	}
	return a, role, nil
}

// UpdateContent requires the requester hold CanEdit or above.
func (s *Service) UpdateContent(ctx context.Context, id string, assetType Type, requesterID, organizationID string, content []byte, appendVersion bool) error {
	ok, err := s.kernel.CheckAccess(ctx, id, assetType, requesterID, permission.IdentityUser, permission.RoleCanEdit, organizationID)
	if err != nil {
		return err
	}
	if !ok {
		return permission.ErrAssetNotFound
	}
	return s.store.UpdateContent(ctx, id, assetType, content, appendVersion)
}

// UpdateChatMeta requires the requester hold CanEdit or above on the Chat.
func (s *Service) UpdateChatMeta(ctx context.Context, id, requesterID, organizationID string, meta ChatMeta) error {
	ok, err := s.kernel.CheckAccess(ctx, id, TypeChat, requesterID, permission.IdentityUser, permission.RoleCanEdit, organizationID)
	if err != nil {
		return err
	}
	if !ok {
		return permission.ErrAssetNotFound
	}
	return s.store.UpdateChatMeta(ctx, id, meta)
}

// SoftDeleteBulk delegates to Store, which folds the CanEdit+ check in
// per-id.
func (s *Service) SoftDeleteBulk(ctx context.Context, ids []string, assetType Type, actor string) ([]BulkDeleteResult, error) {
	return s.store.SoftDeleteBulk(ctx, ids, assetType, actor)
}

// List delegates to Store.
func (s *Service) List(ctx context.Context, userID string, filters ListFilters, page, pageSize int) ([]Listing, error) {
	if page < 1 {
		return nil, fmt.Errorf("asset: page must be >= 1")
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("asset: page_size must be >= 1")
	}
	return s.store.List(ctx, userID, filters, page, pageSize)
}
