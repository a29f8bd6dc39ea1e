package ctxload

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenanalytics/agentd/agentrt"
	"github.com/lumenanalytics/agentd/asset"
	"github.com/lumenanalytics/agentd/permission"
)

// fakePermStore is a minimal in-memory permission.Store: every (asset,
// identity) pair the test registers via grant is CanView+, everything else
// is RoleNone.
type fakePermStore struct {
	roles map[string]permission.Role
}

func newFakePermStore() *fakePermStore { return &fakePermStore{roles: map[string]permission.Role{}} }

func (s *fakePermStore) grant(assetID, identityID string, role permission.Role) {
	s.roles[assetID+"|"+identityID] = role
}

func (s *fakePermStore) DirectRole(_ context.Context, assetID string, _ permission.AssetType, identityID string, _ permission.IdentityType) (permission.Role, error) {
	return s.roles[assetID+"|"+identityID], nil
}
func (s *fakePermStore) CollectionRolesContaining(context.Context, string, permission.AssetType, string) ([]permission.Role, error) {
	return nil, nil
}
func (s *fakePermStore) OrgRole(context.Context, string, string) (permission.OrgRole, error) {
	return permission.OrgRoleViewer, nil
}
func (s *fakePermStore) Upsert(_ context.Context, p permission.Permission) (permission.Permission, error) {
	s.grant(p.AssetID, p.IdentityID, p.Role)
	return p, nil
}
func (s *fakePermStore) SoftDelete(context.Context, string, permission.AssetType, string, permission.IdentityType, string) error {
	return nil
}
func (s *fakePermStore) ListShares(context.Context, string, permission.AssetType) ([]permission.PermissionWithIdentity, error) {
	return nil, nil
}
func (s *fakePermStore) ResolveUserByEmail(context.Context, string) (string, error) {
	return "", permission.ErrUserNotFound
}

// fakeAssetStore is a minimal in-memory asset.Store.
type fakeAssetStore struct {
	assets map[string]*asset.Asset
}

func newFakeAssetStore() *fakeAssetStore { return &fakeAssetStore{assets: map[string]*asset.Asset{}} }

func (s *fakeAssetStore) Create(_ context.Context, a *asset.Asset) error {
	s.assets[a.ID] = a
	return nil
}
func (s *fakeAssetStore) Get(_ context.Context, id string, _ asset.Type) (*asset.Asset, error) {
	a, ok := s.assets[id]
	if !ok {
		return nil, asset.ErrAssetNotFound
	}
	return a, nil
}
func (s *fakeAssetStore) UpdateContent(context.Context, string, asset.Type, []byte, bool) error {
	return nil
}
func (s *fakeAssetStore) UpdateChatMeta(context.Context, string, asset.ChatMeta) error {
	return nil
}
func (s *fakeAssetStore) SoftDeleteBulk(context.Context, []string, asset.Type, string) ([]asset.BulkDeleteResult, error) {
	return nil, nil
}
func (s *fakeAssetStore) List(context.Context, string, asset.ListFilters, int, int) ([]asset.Listing, error) {
	return nil, nil
}

func setup(t *testing.T) (*asset.Service, *fakeAssetStore, *fakePermStore) {
	t.Helper()
	permStore := newFakePermStore()
	kernel, err := permission.New(permStore, nil, nil)
	require.NoError(t, err)
	assetStore := newFakeAssetStore()
	svc, err := asset.NewService(assetStore, kernel)
	require.NoError(t, err)
	return svc, assetStore, permStore
}

func TestNoContextIsEmpty(t *testing.T) {
	result, err := NoContext{}.Load(context.Background(), Actor{})
	require.NoError(t, err)
	require.Empty(t, result.Messages)
	require.Empty(t, result.Capabilities)
}

func TestChatContextReplaysMostRecentSnapshotAndSetsCapabilities(t *testing.T) {
	svc, store, permStore := setup(t)

	raw := []agentrt.Message{
		agentrt.NewUserMessage("u-1", "find revenue trends", ""),
		{
			Kind:      agentrt.KindAssistant,
			Content:   "searching now",
			Progress:  agentrt.ProgressComplete,
			ToolCalls: []agentrt.ToolCall{{ID: "call-1", FunctionName: "search_data_catalog"}},
		},
		agentrt.NewToolMessage("call-1", "search_data_catalog", `{"found":true}`),
	}
	content, err := json.Marshal(raw)
	require.NoError(t, err)

	chat, err := asset.NewAsset("org-1", asset.TypeChat, "user-1", content)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), chat))
	permStore.grant(chat.ID, "user-1", permission.RoleOwner)

	result, err := ChatContext{ChatID: chat.ID, Assets: svc}.Load(context.Background(), Actor{UserID: "user-1", OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Len(t, result.Messages, 3)
	require.Contains(t, result.Capabilities, agentrt.CapabilityDataContext)
}

func TestChatContextDedupesByID(t *testing.T) {
	svc, store, permStore := setup(t)

	raw := []agentrt.Message{
		agentrt.NewUserMessage("u-1", "first", ""),
		agentrt.NewUserMessage("u-1", "first (duplicate)", ""),
	}
	content, err := json.Marshal(raw)
	require.NoError(t, err)

	chat, err := asset.NewAsset("org-1", asset.TypeChat, "user-1", content)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), chat))
	permStore.grant(chat.ID, "user-1", permission.RoleOwner)

	result, err := ChatContext{ChatID: chat.ID, Assets: svc}.Load(context.Background(), Actor{UserID: "user-1", OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
}

func TestMetricContextSeedsAssistantMessageAndCapabilities(t *testing.T) {
	svc, store, permStore := setup(t)

	metricYAML, err := asset.EncodeMetric(asset.MetricYML{
		Title:      "Revenue",
		SQL:        "select 1",
		TimeFrame:  "last_30_days",
		DatasetIDs: []string{"ds-1"},
	})
	require.NoError(t, err)

	metric, err := asset.NewAsset("org-1", asset.TypeMetricFile, "user-1", metricYAML)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), metric))
	permStore.grant(metric.ID, "user-1", permission.RoleOwner)

	result, err := MetricContext{MetricID: metric.ID, Assets: svc}.Load(context.Background(), Actor{UserID: "user-1", OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	require.Equal(t, agentrt.KindAssistant, result.Messages[0].Kind)
	require.True(t, result.Messages[0].Initial)
	require.Contains(t, result.Messages[0].Content, "Revenue")
	require.Contains(t, result.Capabilities, agentrt.CapabilityMetricsAvailable)
	require.Contains(t, result.Capabilities, agentrt.CapabilityDataContext)
}

func TestGenericAssetContextRejectsUnsupportedType(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := GenericAssetContext{AssetID: "x", AssetType: asset.TypeCollection, Assets: svc}.Load(context.Background(), Actor{})
	require.Error(t, err)
}
