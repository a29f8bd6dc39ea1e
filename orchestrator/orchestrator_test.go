package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenanalytics/agentd/agentrt"
	"github.com/lumenanalytics/agentd/asset"
	"github.com/lumenanalytics/agentd/mode"
	"github.com/lumenanalytics/agentd/model"
	"github.com/lumenanalytics/agentd/permission"
	"github.com/lumenanalytics/agentd/toolkit"
)

// fakePermStore returns whatever role grant or Upsert recorded for an
// (asset, identity) pair and RoleNone otherwise, and reports every caller as
// an org Viewer: good enough for a single owning user driving its own chats
// and assets.
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

// fakeAssetStore is a minimal in-memory asset.Store, extended from
// ctxload's fake with the bookkeeping this test actually asserts against
// (ChatMeta, overwritten content). Unlike ctxload's fixture -- where every
// test grants permissions explicitly -- PostChat itself creates the Chat
// asset for a new conversation, so Create must grant its creator Owner
// itself to match Store's documented contract.
type fakeAssetStore struct {
	assets map[string]*asset.Asset
	perms  *fakePermStore
}

func newFakeAssetStore(perms *fakePermStore) *fakeAssetStore {
	return &fakeAssetStore{assets: map[string]*asset.Asset{}, perms: perms}
}

func (s *fakeAssetStore) Create(_ context.Context, a *asset.Asset) error {
	s.assets[a.ID] = a
	s.perms.grant(a.ID, a.CreatedBy, permission.RoleOwner)
	return nil
}
func (s *fakeAssetStore) Get(_ context.Context, id string, _ asset.Type) (*asset.Asset, error) {
	a, ok := s.assets[id]
	if !ok {
		return nil, asset.ErrAssetNotFound
	}
	return a, nil
}
func (s *fakeAssetStore) UpdateContent(_ context.Context, id string, _ asset.Type, content []byte, appendVersion bool) error {
	a, ok := s.assets[id]
	if !ok {
		return asset.ErrAssetNotFound
	}
	if appendVersion {
		a.History.AddVersion(content)
	} else {
		a.History.UpdateLatestVersion(content)
	}
	return nil
}
func (s *fakeAssetStore) UpdateChatMeta(_ context.Context, id string, meta asset.ChatMeta) error {
	a, ok := s.assets[id]
	if !ok {
		return asset.ErrAssetNotFound
	}
	a.Chat = &meta
	return nil
}
func (s *fakeAssetStore) SoftDeleteBulk(context.Context, []string, asset.Type, string) ([]asset.BulkDeleteResult, error) {
	return nil, nil
}
func (s *fakeAssetStore) List(context.Context, string, asset.ListFilters, int, int) ([]asset.Listing, error) {
	return nil, nil
}

// scriptedClient streams a fixed sequence of chunk lists, one per Stream
// call, standing in for a real model advancing a conversation turn by turn.
type scriptedClient struct {
	scripts [][]model.Chunk
	calls   int
}

func (c *scriptedClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return nil, nil
}

func (c *scriptedClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	i := c.calls
	if i >= len(c.scripts) {
		i = len(c.scripts) - 1
	}
	c.calls++
	return &scriptedStreamer{chunks: c.scripts[i]}, nil
}

type scriptedStreamer struct {
	chunks []model.Chunk
	i      int
}

func (s *scriptedStreamer) Recv() (model.Chunk, error) {
	if s.i >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}
func (s *scriptedStreamer) Close() error             { return nil }
func (s *scriptedStreamer) Metadata() map[string]any { return nil }

func toolCallChunks(callID string, name string, argsJSON string) []model.Chunk {
	return []model.Chunk{
		{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{ID: callID, Name: toolkit.Ident(name), Delta: argsJSON}},
		{Type: model.ChunkTypeStop, StopReason: "tool_use"},
	}
}

func setupOrchestrator(t *testing.T, scripts [][]model.Chunk) (*Orchestrator, *fakeAssetStore, *fakePermStore) {
	t.Helper()
	permStore := newFakePermStore()
	kernel, err := permission.New(permStore, nil, nil)
	require.NoError(t, err)
	assetStore := newFakeAssetStore(permStore)
	assets, err := asset.NewService(assetStore, kernel)
	require.NoError(t, err)

	orc, err := New(assets, &scriptedClient{scripts: scripts}, nil, nil)
	require.NoError(t, err)
	return orc, assetStore, permStore
}

// TestPostChatPlanningFlowEndsAtIdleWithPersistedMetric drives the S1-style
// scenario from spec.md §8: InitialAnalysis searches the catalog, Planning
// records a plan, Analysis creates a metric and immediately signals done,
// and the Chat asset ends up holding the full message log plus a
// most_recent_file_* pointer at the new Metric.
func TestPostChatPlanningFlowEndsAtIdleWithPersistedMetric(t *testing.T) {
	scripts := [][]model.Chunk{
		toolCallChunks("call-1", "search_data_catalog", `{"search_requirements":"revenue by region"}`),
		toolCallChunks("call-2", "create_plan", `{"plan_markdown":"1. query revenue\n2. chart it"}`),
		toolCallChunks("call-3", "create_metrics", `{"title":"Revenue","sql":"select 1","time_frame":"last_30_days","dataset_ids":["ds-1"]}`),
		toolCallChunks("call-4", "done", `{"summary":"created the revenue metric"}`),
	}
	orc, store, permStore := setupOrchestrator(t, scripts)
	_ = permStore

	out, err := orc.PostChat(context.Background(), Request{
		UserID:         "user-1",
		OrganizationID: "org-1",
		Prompt:         "show me revenue trends",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.ChatID)

	var sawDone bool
	for evt := range out.Events {
		require.Nil(t, evt.Err)
		if evt.Value != nil && evt.Value.Done {
			sawDone = true
		}
	}
	require.True(t, sawDone)

	chat, ok := store.assets[out.ChatID]
	require.True(t, ok)
	require.NotNil(t, chat.Chat)
	require.Equal(t, asset.TypeMetricFile, chat.Chat.MostRecentFileType)
	require.NotEmpty(t, chat.Chat.MostRecentFileID)

	latest, ok := chat.History.Latest()
	require.True(t, ok)
	var messages []agentrt.Message
	require.NoError(t, json.Unmarshal(latest.Content, &messages))
	var sawToolResult bool
	for _, m := range messages {
		if m.Kind == agentrt.KindTool && m.ToolName == "create_metrics" {
			sawToolResult = true
		}
	}
	require.True(t, sawToolResult)

	metric, ok := store.assets[chat.Chat.MostRecentFileID]
	require.True(t, ok)
	require.Equal(t, asset.TypeMetricFile, metric.Type)
}

// TestPostChatRejectsEmptyRequest covers PostChat's own argument validation
// ahead of any chat/context resolution.
func TestPostChatRejectsEmptyRequest(t *testing.T) {
	orc, _, _ := setupOrchestrator(t, nil)
	_, err := orc.PostChat(context.Background(), Request{UserID: "user-1", OrganizationID: "org-1"})
	require.Error(t, err)
}

// TestPostChatSeedsFromExistingAsset exercises the AssetID-without-Prompt
// synthetic-message path (spec.md §4.8 step 1's second half) against an
// already-persisted Metric.
func TestPostChatSeedsFromExistingAsset(t *testing.T) {
	scripts := [][]model.Chunk{
		toolCallChunks("call-1", "done", `{"summary":"looked it over"}`),
	}
	orc, store, permStore := setupOrchestrator(t, scripts)

	metricYAML, err := asset.EncodeMetric(asset.MetricYML{Title: "Revenue", SQL: "select 1", TimeFrame: "last_30_days", DatasetIDs: []string{"ds-1"}})
	require.NoError(t, err)
	metric, err := asset.NewAsset("org-1", asset.TypeMetricFile, "user-1", metricYAML)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), metric))
	permStore.grant(metric.ID, "user-1", permission.RoleOwner)

	out, err := orc.PostChat(context.Background(), Request{
		UserID:         "user-1",
		OrganizationID: "org-1",
		AssetID:        metric.ID,
		AssetType:      asset.TypeMetricFile,
	})
	require.NoError(t, err)
	for evt := range out.Events {
		require.Nil(t, evt.Err)
	}

	chat := store.assets[out.ChatID]
	require.NotNil(t, chat.Chat)
	require.Equal(t, metric.ID, chat.Chat.MostRecentFileID)
	require.Equal(t, asset.TypeMetricFile, chat.Chat.MostRecentFileType)
}

// TestPostChatCliAssistRunsFilesystemTools covers spec.md §6's CLI assist
// mode entrypoint override: Request.InitialMode=CliAssist must register the
// filesystem/shell toolkit instead of the data-analyst tools and actually
// let a write_file_content call through to the real filesystem. CliAssist
// carries no terminating tool, so with a model that never stops calling
// tools the conversation runs to agentrt's own step limit instead.
func TestPostChatCliAssistRunsFilesystemTools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	script := toolCallChunks("call-1", "write_file_content", `{"file_path":"`+path+`","content":"hello"}`)
	orc, _, _ := setupOrchestrator(t, [][]model.Chunk{script})

	out, err := orc.PostChat(context.Background(), Request{
		UserID:         "user-1",
		OrganizationID: "org-1",
		Prompt:         "write a file for me",
		InitialMode:    mode.CliAssist,
	})
	require.NoError(t, err)

	var sawStepLimit bool
	for evt := range out.Events {
		if evt.Err != nil && evt.Err.Kind == agentrt.KindStepLimitExceeded {
			sawStepLimit = true
		}
	}
	require.True(t, sawStepLimit)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
}
