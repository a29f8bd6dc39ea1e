package permission

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	direct      map[string]Role
	collections map[string][]Role
	orgRoles    map[string]OrgRole
	upserts     []Permission
	deleted     map[string]bool
	emails      map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		direct:      map[string]Role{},
		collections: map[string][]Role{},
		orgRoles:    map[string]OrgRole{},
		deleted:     map[string]bool{},
		emails:      map[string]string{},
	}
}

func tupleKey(assetID string, assetType AssetType, identityID string, identityType IdentityType) string {
	return string(assetType) + "/" + assetID + "/" + string(identityType) + "/" + identityID
}

func (f *fakeStore) DirectRole(_ context.Context, assetID string, assetType AssetType, identityID string, identityType IdentityType) (Role, error) {
	if f.deleted[tupleKey(assetID, assetType, identityID, identityType)] {
		return RoleNone, nil
	}
	return f.direct[tupleKey(assetID, assetType, identityID, identityType)], nil
}

func (f *fakeStore) CollectionRolesContaining(_ context.Context, assetID string, _ AssetType, identityID string) ([]Role, error) {
	return f.collections[assetID+"/"+identityID], nil
}

func (f *fakeStore) OrgRole(_ context.Context, userID, organizationID string) (OrgRole, error) {
	role, ok := f.orgRoles[userID+"/"+organizationID]
	if !ok {
		return "", ErrIdentityNotFound
	}
	return role, nil
}

func (f *fakeStore) Upsert(_ context.Context, p Permission) (Permission, error) {
	key := tupleKey(p.AssetID, p.AssetType, p.IdentityID, p.IdentityType)
	f.direct[key] = p.Role
	delete(f.deleted, key)
	f.upserts = append(f.upserts, p)
	return p, nil
}

func (f *fakeStore) SoftDelete(_ context.Context, assetID string, assetType AssetType, identityID string, identityType IdentityType, _ string) error {
	key := tupleKey(assetID, assetType, identityID, identityType)
	if _, ok := f.direct[key]; !ok || f.deleted[key] {
		return ErrNoActivePermission
	}
	f.deleted[key] = true
	return nil
}

func (f *fakeStore) ListShares(context.Context, string, AssetType) ([]PermissionWithIdentity, error) {
	return nil, nil
}

func (f *fakeStore) ResolveUserByEmail(_ context.Context, email string) (string, error) {
	id, ok := f.emails[email]
	if !ok {
		return "", ErrUserNotFound
	}
	return id, nil
}

func TestEffectiveRoleCollectionOverridesDirect(t *testing.T) {
	store := newFakeStore()
	store.direct[tupleKey("report-1", AssetTypeReportFile, "user-1", IdentityUser)] = RoleCanView
	store.collections["report-1/user-1"] = []Role{RoleCanEdit}

	k, err := New(store, nil, nil)
	require.NoError(t, err)

	role, err := k.EffectiveRole(context.Background(), "report-1", AssetTypeReportFile, "user-1", IdentityUser)
	require.NoError(t, err)
	require.Equal(t, RoleCanEdit, role)
}

func TestEffectiveRoleFallsBackToDirectWithoutCollection(t *testing.T) {
	store := newFakeStore()
	store.direct[tupleKey("report-1", AssetTypeReportFile, "user-1", IdentityUser)] = RoleCanView

	k, err := New(store, nil, nil)
	require.NoError(t, err)

	role, err := k.EffectiveRole(context.Background(), "report-1", AssetTypeReportFile, "user-1", IdentityUser)
	require.NoError(t, err)
	require.Equal(t, RoleCanView, role)
}

// TestCollectionInheritanceRemoval covers S4: removing the user from the
// containing collection drops the effective role back to None when there is
// no direct grant.
func TestCollectionInheritanceRemoval(t *testing.T) {
	store := newFakeStore()
	store.collections["report-1/user-1"] = []Role{RoleCanView}
	k, err := New(store, nil, nil)
	require.NoError(t, err)

	role, err := k.EffectiveRole(context.Background(), "report-1", AssetTypeReportFile, "user-1", IdentityUser)
	require.NoError(t, err)
	require.Equal(t, RoleCanView, role)

	delete(store.collections, "report-1/user-1")
	role, err = k.EffectiveRole(context.Background(), "report-1", AssetTypeReportFile, "user-1", IdentityUser)
	require.NoError(t, err)
	require.Equal(t, RoleNone, role)
}

func TestCheckAccessDeprecatedAssetTypeRejected(t *testing.T) {
	store := newFakeStore()
	k, err := New(store, nil, nil)
	require.NoError(t, err)

	_, err = k.CheckAccess(context.Background(), "d-1", AssetTypeDashboard, "user-1", IdentityUser, RoleCanView, "")
	require.ErrorIs(t, err, ErrDeprecatedAssetType)
}

func TestCheckAccessAdminOverrideAlwaysPasses(t *testing.T) {
	store := newFakeStore()
	store.orgRoles["user-1/org-1"] = OrgRoleWorkspaceAdmin
	k, err := New(store, nil, nil)
	require.NoError(t, err)

	ok, err := k.CheckAccess(context.Background(), "metric-1", AssetTypeMetricFile, "user-1", IdentityUser, RoleOwner, "org-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRemoveShareByEmailNoActivePermissionIsDistinguishable(t *testing.T) {
	store := newFakeStore()
	store.emails["nobody@example.com"] = "user-9"
	k, err := New(store, nil, nil)
	require.NoError(t, err)

	err = k.RemoveShareByEmail(context.Background(), "nobody@example.com", "metric-1", AssetTypeMetricFile, "actor-1")
	require.ErrorIs(t, err, ErrNoActivePermission)
}

func TestCreateShareByEmailUnknownUser(t *testing.T) {
	store := newFakeStore()
	k, err := New(store, nil, nil)
	require.NoError(t, err)

	_, err = k.CreateShareByEmail(context.Background(), "missing@example.com", "metric-1", AssetTypeMetricFile, RoleCanView, "actor-1")
	require.ErrorIs(t, err, ErrUserNotFound)
}

// TestCheckPermissionAccessMonotonic verifies property 4 from spec.md §8:
// permission role lookups are monotonic under CheckPermissionAccess when
// the caller gains WorkspaceAdmin/DataAdmin in the asset's organization --
// gaining admin can only ever flip a false result to true, never the
// reverse, regardless of the direct role or allowed-roles list.
func TestCheckPermissionAccessMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	roleGen := gen.OneConstOf(RoleNone, RoleCanView, RoleCanFilter, RoleCanEdit, RoleFullAccess, RoleOwner)

	properties.Property("gaining admin never revokes access already granted", prop.ForAll(
		func(role Role, allowed []Role) bool {
			before := CheckPermissionAccess(&role, allowed, OrgRoleViewer)
			afterWorkspace := CheckPermissionAccess(&role, allowed, OrgRoleWorkspaceAdmin)
			afterData := CheckPermissionAccess(&role, allowed, OrgRoleDataAdmin)
			if before && !afterWorkspace {
				return false
			}
			if before && !afterData {
				return false
			}
			return afterWorkspace && afterData
		},
		roleGen,
		gen.SliceOf(roleGen),
	))

	properties.TestingRun(t)
}
