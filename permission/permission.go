// Package permission implements the uniform asset permission kernel (C1):
// check/grant/revoke of (identity, asset) -> role, organization admin
// overrides, and effective-role resolution that accounts for Collection
// containment. All reads and writes funnel through a Kernel backed by a
// Store; Kernel itself holds no state beyond an optional short-TTL cache.
package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumenanalytics/agentd/telemetry"
)

// Role is a permission level, totally ordered from least to most capable.
type Role int

const (
	RoleNone Role = iota
	RoleCanView
	RoleCanFilter
	RoleCanEdit
	RoleFullAccess
	RoleOwner
)

// String renders the role using the names used in the data model.
func (r Role) String() string {
	switch r {
	case RoleCanView:
		return "CanView"
	case RoleCanFilter:
		return "CanFilter"
	case RoleCanEdit:
		return "CanEdit"
	case RoleFullAccess:
		return "FullAccess"
	case RoleOwner:
		return "Owner"
	default:
		return "None"
	}
}

// AtLeast reports whether r is at least as capable as min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// IdentityType identifies the kind of principal an AssetPermission grants a
// role to.
type IdentityType string

const (
	IdentityUser  IdentityType = "User"
	IdentityTeam  IdentityType = "Team"
	IdentityOrg   IdentityType = "Organization"
)

// AssetType enumerates the asset kinds permissions can be granted on.
// Dashboard and Thread are the deprecated legacy singular forms and are
// rejected by every Kernel operation that accepts an AssetType.
type AssetType string

const (
	AssetTypeMetricFile   AssetType = "MetricFile"
	AssetTypeDashboardFile AssetType = "DashboardFile"
	AssetTypeReportFile   AssetType = "ReportFile"
	AssetTypeCollection   AssetType = "Collection"
	AssetTypeChat         AssetType = "Chat"

	// AssetTypeDashboard and AssetTypeThread are deprecated legacy names that
	// Kernel rejects with ErrDeprecatedAssetType wherever they are passed.
	AssetTypeDashboard AssetType = "Dashboard"
	AssetTypeThread    AssetType = "Thread"
)

// OrgRole is a user's role within an organization, independent of any
// per-asset permission.
type OrgRole string

const (
	OrgRoleWorkspaceAdmin OrgRole = "WorkspaceAdmin"
	OrgRoleDataAdmin      OrgRole = "DataAdmin"
	OrgRoleViewer         OrgRole = "Viewer"
	OrgRoleQuerier        OrgRole = "Querier"
	OrgRoleRestrictedQuerier OrgRole = "RestrictedQuerier"
)

// IsAdmin reports whether the org role grants organization-wide admin
// override on every asset in the organization.
func (r OrgRole) IsAdmin() bool {
	return r == OrgRoleWorkspaceAdmin || r == OrgRoleDataAdmin
}

// Permission is a single (identity, asset) -> role grant.
type Permission struct {
	IdentityID   string
	IdentityType IdentityType
	AssetID      string
	AssetType    AssetType
	Role         Role
	CreatedBy    string
	UpdatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// PermissionWithIdentity pairs a Permission with the identity's display
// information, when resolvable (User identities only; Team/Organization rows
// carry a nil Identity).
type PermissionWithIdentity struct {
	Permission Permission
	Identity   *IdentitySummary
}

// IdentitySummary is the minimal user-facing projection of an identity,
// joined in for list_shares.
type IdentitySummary struct {
	ID    string
	Email string
	Name  string
}

// Errors returned by Kernel operations. Callers use errors.Is against these
// sentinels; the orchestrator maps them to transport status codes per
// spec.md §7 (NotFound->404, Forbidden->403, DeprecatedAssetType->400).
var (
	ErrAssetNotFound       = errors.New("permission: asset not found")
	ErrIdentityNotFound    = errors.New("permission: identity not found")
	ErrDeprecatedAssetType = errors.New("permission: deprecated asset type")
	ErrNoActivePermission  = errors.New("permission: no active permission")
	ErrUserNotFound        = errors.New("permission: user not found")
)

// DatabaseError wraps a lower-level store failure so callers can distinguish
// infrastructure failures from the sentinel domain errors above via
// errors.As.
type DatabaseError struct{ Cause error }

func (e *DatabaseError) Error() string { return fmt.Sprintf("permission: database error: %v", e.Cause) }
func (e *DatabaseError) Unwrap() error { return e.Cause }

// Store is the persistence boundary the Kernel is built on. Implementations
// (permissionmongo) must treat every method as safe for concurrent use; the
// Kernel itself adds no additional synchronization beyond the optional
// Cache.
type Store interface {
	// DirectRole returns the non-deleted permission role an identity holds
	// directly on an asset, or RoleNone if none exists.
	DirectRole(ctx context.Context, assetID string, assetType AssetType, identityID string, identityType IdentityType) (Role, error)
	// CollectionRolesContaining returns every non-deleted role the identity
	// holds on a Collection that contains assetID (of assetType), via the
	// collections_to_assets join.
	CollectionRolesContaining(ctx context.Context, assetID string, assetType AssetType, identityID string) ([]Role, error)
	// OrgRole returns the user's role within organizationID, or
	// ErrIdentityNotFound if the user has no membership row.
	OrgRole(ctx context.Context, userID, organizationID string) (OrgRole, error)
	// Upsert creates or reactivates a permission grant per the unique
	// (identity_id, identity_type, asset_id, asset_type) tuple.
	Upsert(ctx context.Context, p Permission) (Permission, error)
	// SoftDelete marks the tuple's permission as deleted. Returns
	// ErrNoActivePermission if no active row exists for the tuple.
	SoftDelete(ctx context.Context, assetID string, assetType AssetType, identityID string, identityType IdentityType, actor string) error
	// ListShares returns every non-deleted permission on an asset, joined
	// with identity information where resolvable.
	ListShares(ctx context.Context, assetID string, assetType AssetType) ([]PermissionWithIdentity, error)
	// ResolveUserByEmail returns the user id for email, or ErrUserNotFound.
	ResolveUserByEmail(ctx context.Context, email string) (string, error)
}

// Cache is an optional short-TTL cache of resolved effective roles (direct
// or collection-granted), keyed by (asset_id, identity_id). Per spec.md's design notes, a TTL of a
// few seconds is enough for admin-role changes to propagate within a single
// conversation turn while avoiding a permission check on every tool call
// round-tripping to the database. permissionredis provides a Redis-backed
// implementation; Kernel works without one.
type Cache interface {
	Get(ctx context.Context, assetID, identityID string) (Role, bool)
	Set(ctx context.Context, assetID, identityID string, role Role)
	Invalidate(ctx context.Context, assetID, identityID string)
}

// Kernel implements the Permission Kernel (C1) operations against a Store,
// optionally fronted by a Cache.
type Kernel struct {
	store  Store
	cache  Cache
	tracer telemetry.Tracer
}

// New constructs a Kernel. cache may be nil, in which case every read goes
// straight to store. tracer may be nil, in which case permission checks
// still run but emit no spans (telemetry.NewNoopTracer's behavior).
func New(store Store, cache Cache, tracer telemetry.Tracer) (*Kernel, error) {
	if store == nil {
		return nil, errors.New("permission: store is required")
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Kernel{store: store, cache: cache, tracer: tracer}, nil
}

func validAssetType(t AssetType) error {
	switch t {
	case AssetTypeDashboard, AssetTypeThread:
		return ErrDeprecatedAssetType
	case AssetTypeMetricFile, AssetTypeDashboardFile, AssetTypeReportFile, AssetTypeCollection, AssetTypeChat:
		return nil
	default:
		return ErrDeprecatedAssetType
	}
}

// CheckAccess returns true iff identityID holds a role >= requiredRole on
// the asset, directly, transitively through a Collection containing it
// (ReportFile assets only), or via an organization-wide
// admin override. organizationID may be empty when the asset has no owning
// organization, in which case no admin override applies.
func (k *Kernel) CheckAccess(ctx context.Context, assetID string, assetType AssetType, identityID string, identityType IdentityType, requiredRole Role, organizationID string) (bool, error) {
	ctx, span := k.tracer.Start(ctx, "permission.check_access", trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(
		attribute.String("asset.type", string(assetType)),
		attribute.String("identity.type", string(identityType)),
		attribute.String("role.required", requiredRole.String()),
	))
	defer span.End()

	allowed, err := k.checkAccess(ctx, assetID, assetType, identityID, identityType, requiredRole, organizationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check access failed")
		return false, err
	}
	span.AddEvent("permission.decision", "allowed", allowed)
	span.SetStatus(codes.Ok, "ok")
	return allowed, nil
}

func (k *Kernel) checkAccess(ctx context.Context, assetID string, assetType AssetType, identityID string, identityType IdentityType, requiredRole Role, organizationID string) (bool, error) {
	if err := validAssetType(assetType); err != nil {
		return false, err
	}
	role, err := k.EffectiveRole(ctx, assetID, assetType, identityID, identityType)
	if err != nil {
		return false, err
	}
	if role.AtLeast(requiredRole) {
		return true, nil
	}
	if organizationID == "" || identityType != IdentityUser {
		return false, nil
	}
	orgRole, err := k.store.OrgRole(ctx, identityID, organizationID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return false, nil
		}
		return false, &DatabaseError{Cause: err}
	}
	return orgRole.IsAdmin(), nil
}

// CheckPermissionAccess is the pure decision function combining an
// already-fetched direct/effective role with the caller's organization
// role. An admin in organizationID always passes regardless of roleOpt.
// This mirrors the original check_permission_access contract exactly so it
// can be unit-tested without a Store.
func CheckPermissionAccess(roleOpt *Role, allowedRoles []Role, callerOrgRole OrgRole) bool {
	if callerOrgRole.IsAdmin() {
		return true
	}
	if roleOpt == nil {
		return false
	}
	for _, allowed := range allowedRoles {
		if *roleOpt >= allowed {
			return true
		}
	}
	return false
}

// EffectiveRole resolves the role identityID holds on the asset. For
// ReportFile assets it prefers a role granted via a containing Collection
// over a direct role when both are present; every other asset type uses the
// direct role only (spec.md §4.1: "collection-granted role overrides direct role
// when present"). It does not consider organization admin override; callers
// needing that combine EffectiveRole's result with an OrgRole check (see
// CheckAccess).
func (k *Kernel) EffectiveRole(ctx context.Context, assetID string, assetType AssetType, identityID string, identityType IdentityType) (Role, error) {
	ctx, span := k.tracer.Start(ctx, "permission.effective_role", trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(
		attribute.String("asset.type", string(assetType)),
		attribute.String("identity.type", string(identityType)),
	))
	defer span.End()

	role, err := k.effectiveRole(ctx, assetID, assetType, identityID, identityType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "effective role failed")
		return RoleNone, err
	}
	span.AddEvent("permission.role", "role", role.String())
	span.SetStatus(codes.Ok, "ok")
	return role, nil
}

func (k *Kernel) effectiveRole(ctx context.Context, assetID string, assetType AssetType, identityID string, identityType IdentityType) (Role, error) {
	if err := validAssetType(assetType); err != nil {
		return RoleNone, err
	}
	if identityType == IdentityUser && k.cache != nil {
		if role, ok := k.cache.Get(ctx, assetID, identityID); ok {
			return role, nil
		}
	}

	direct, err := k.store.DirectRole(ctx, assetID, assetType, identityID, identityType)
	if err != nil {
		return RoleNone, &DatabaseError{Cause: err}
	}

	effective := direct
	if assetType == AssetTypeReportFile {
		collRoles, err := k.store.CollectionRolesContaining(ctx, assetID, assetType, identityID)
		if err != nil {
			return RoleNone, &DatabaseError{Cause: err}
		}
		if len(collRoles) > 0 {
			// Any collection-granted role is sufficient; the original system
			// does not attempt to pick the highest of several, it takes the
			// first encountered.
			effective = collRoles[0]
		}
	}

	if identityType == IdentityUser && k.cache != nil {
		k.cache.Set(ctx, assetID, identityID, effective)
	}
	return effective, nil
}

// CreateShare upserts a permission grant for identity on asset, returning
// the resulting row. Invalidates any cached role for the tuple.
func (k *Kernel) CreateShare(ctx context.Context, assetID string, assetType AssetType, identityID string, identityType IdentityType, role Role, actor string) (Permission, error) {
	if err := validAssetType(assetType); err != nil {
		return Permission{}, err
	}
	now := time.Now().UTC()
	p := Permission{
		IdentityID:   identityID,
		IdentityType: identityType,
		AssetID:      assetID,
		AssetType:    assetType,
		Role:         role,
		CreatedBy:    actor,
		UpdatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	out, err := k.store.Upsert(ctx, p)
	if err != nil {
		return Permission{}, &DatabaseError{Cause: err}
	}
	if identityType == IdentityUser && k.cache != nil {
		k.cache.Invalidate(ctx, assetID, identityID)
	}
	return out, nil
}

// CreateShareByEmail resolves email to a user id and grants role on asset.
// Returns ErrUserNotFound if no user matches email.
func (k *Kernel) CreateShareByEmail(ctx context.Context, email string, assetID string, assetType AssetType, role Role, actor string) (Permission, error) {
	userID, err := k.store.ResolveUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Permission{}, ErrUserNotFound
		}
		return Permission{}, &DatabaseError{Cause: err}
	}
	return k.CreateShare(ctx, assetID, assetType, userID, IdentityUser, role, actor)
}

// RemoveShareByEmail resolves email and soft-deletes its permission on
// asset. Returns ErrNoActivePermission (not an error the caller should
// surface as a failure) when there was nothing to remove, so the caller may
// treat removal as idempotent.
func (k *Kernel) RemoveShareByEmail(ctx context.Context, email string, assetID string, assetType AssetType, actor string) error {
	if err := validAssetType(assetType); err != nil {
		return err
	}
	userID, err := k.store.ResolveUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return &DatabaseError{Cause: err}
	}
	if err := k.store.SoftDelete(ctx, assetID, assetType, userID, IdentityUser, actor); err != nil {
		if errors.Is(err, ErrNoActivePermission) {
			return ErrNoActivePermission
		}
		return &DatabaseError{Cause: err}
	}
	if k.cache != nil {
		k.cache.Invalidate(ctx, assetID, userID)
	}
	return nil
}

// ListShares returns every active permission on asset, joined with identity
// display information for User rows.
func (k *Kernel) ListShares(ctx context.Context, assetID string, assetType AssetType) ([]PermissionWithIdentity, error) {
	if err := validAssetType(assetType); err != nil {
		return nil, err
	}
	out, err := k.store.ListShares(ctx, assetID, assetType)
	if err != nil {
		return nil, &DatabaseError{Cause: err}
	}
	return out, nil
}

// CheckAdminAccess reports whether userID is a WorkspaceAdmin or DataAdmin
// in organizationID, mirroring the original is_user_org_admin helper. It
// returns RoleFullAccess (and true) when the user is an admin so callers
// can use the result directly as an override role.
func (k *Kernel) CheckAdminAccess(ctx context.Context, userID, organizationID string) (Role, bool, error) {
	orgRole, err := k.store.OrgRole(ctx, userID, organizationID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return RoleNone, false, nil
		}
		return RoleNone, false, &DatabaseError{Cause: err}
	}
	if orgRole.IsAdmin() {
		return RoleFullAccess, true, nil
	}
	return RoleNone, false, nil
}
