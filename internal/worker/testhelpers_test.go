// Package worker provides the switchboard worker service.
package worker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/internal/db"
	"github.com/thebtf/switchboard/internal/db/sqlite"
	"github.com/thebtf/switchboard/internal/embedding"
	"github.com/thebtf/switchboard/pkg/models"
)

// Fixture identifiers. The workspace id must parse as a UUID because
// request validation rejects anything else.
const (
	wsAcme     = "3f2a8b9e-5c41-4b8f-9d67-2e8a1fd0c3b4"
	userEditor = "user_editor"
	tblTasks   = "tbl_tasks"
	pageNotes  = "page_notes"
)

// testConfig returns a config pointed at a temp data dir. The embedding
// key env vars are cleared so the engine always picks the deterministic
// feature-hash embedder.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SWITCHBOARD_EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.EmbeddingDim = 32
	cfg.RateLimitPerSecond = 1000
	cfg.RateLimitBurst = 1000
	return cfg
}

// testService builds a ready Service over an embedded store, bypassing
// async initialization so tests stay deterministic.
func testService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()

	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: cfg.DBPath(), MaxConns: cfg.MaxConns})
	require.NoError(t, err)
	ws := sqlite.NewWorkspaceStore(store)
	t.Cleanup(func() { _ = ws.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	orch, manager := buildEngine(cfg, ws)
	svc := &Service{
		version:    "test",
		config:     cfg,
		store:      ws,
		orch:       orch,
		searchMgr:  manager,
		httpRouter: chi.NewRouter(),
		limiter:    NewPerClientRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
	}
	svc.setupMiddleware()
	svc.setupRoutes()
	svc.ready.Store(true)

	return svc
}

// testUnreadyService builds a Service whose initialization never runs, for
// exercising the readiness gate.
func testUnreadyService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := &Service{
		version:    "test",
		config:     cfg,
		httpRouter: chi.NewRouter(),
		limiter:    NewPerClientRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
	}
	svc.setupMiddleware()
	svc.setupRoutes()

	return svc
}

// seedWorkspace loads one workspace: a Tasks table, a page, and two
// passages embedded with the same feature-hash embedder the engine uses.
func seedWorkspace(t *testing.T, store db.Store, dims int) {
	t.Helper()
	ctx := context.Background()
	embedder := embedding.NewStaticClient(dims)

	require.NoError(t, store.CreateWorkspace(ctx, wsAcme, "Acme"))
	require.NoError(t, store.UpsertMember(ctx, wsAcme, userEditor, models.RoleEditor))

	columns := []models.ColumnInfo{
		{ID: "col_name", Name: "Name", Type: models.ColumnText},
		{ID: "col_status", Name: "Status", Type: models.ColumnSelect, Options: []string{"pending", "done"}},
		{ID: "col_points", Name: "Points", Type: models.ColumnNumber},
	}
	require.NoError(t, store.CreateTable(ctx, wsAcme, tblTasks, "Tasks", columns))

	rows := []models.Row{
		{"Name": "Draft launch plan", "Status": "pending", "Points": float64(3)},
		{"Name": "Ship beta", "Status": "done", "Points": float64(5)},
		{"Name": "Review pricing", "Status": "pending", "Points": float64(2)},
	}
	require.NoError(t, store.ReplaceRows(ctx, wsAcme, tblTasks, rows))

	require.NoError(t, store.CreatePage(ctx, wsAcme, pageNotes, "Meeting Notes", 12))

	seedPassages := []struct{ id, content string }{
		{"psg_1", "The quarterly roadmap shifted toward platform reliability work."},
		{"psg_2", "Budget approvals move to the finance council next month."},
	}
	passages := make([]db.PassageRecord, 0, len(seedPassages))
	for _, p := range seedPassages {
		vec, err := embedder.Embed(ctx, p.content)
		require.NoError(t, err)
		passages = append(passages, db.PassageRecord{
			ID:        p.id,
			SourceRef: pageNotes,
			Content:   p.content,
			Embedding: vec,
		})
	}
	require.NoError(t, store.UpsertPassages(ctx, wsAcme, passages))
}

// doRequest runs one request through the full middleware stack.
func doRequest(t *testing.T, svc *Service, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, payload)
	rec := httptest.NewRecorder()
	svc.httpRouter.ServeHTTP(rec, req)
	return rec
}

// postQuery posts one query and decodes the envelope.
func postQuery(t *testing.T, svc *Service, req *models.QueryRequest) *models.Envelope {
	t.Helper()

	rec := doRequest(t, svc, http.MethodPost, "/api/v1/query", req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env models.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return &env
}
