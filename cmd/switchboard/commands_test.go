package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/switchboard/pkg/client"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

// newTestServer starts a fake worker that replies from the responses map,
// keyed by "METHOD /path", and records every request it sees.
func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":"not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

// withTestWorker points newWorkerClient at the fake worker for the duration
// of the test.
func withTestWorker(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := newTestServer(t, responses)

	old := newWorkerClient
	newWorkerClient = func() *client.Client {
		return client.New(ts.server.URL)
	}
	t.Cleanup(func() { newWorkerClient = old })
	return ts
}

func (ts *testServer) port(t *testing.T) int {
	t.Helper()
	u, err := url.Parse(ts.server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

// execute runs the CLI with the given args and restores flag defaults, since
// cobra flag values persist across Execute calls.
func execute(t *testing.T, args ...string) error {
	t.Helper()
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		for _, cmd := range []*cobra.Command{queryCmd, contextCmd, invalidateCmd} {
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
		}
	})

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestQueryCommand(t *testing.T) {
	ts := withTestWorker(t, map[string]string{
		"POST /api/v1/query": `{
			"success": true,
			"response": {
				"blocks": [
					{"type": "text", "content": "2 rows from Tasks."},
					{"type": "table", "content": "Tasks", "data": {"tableId": "tbl_tasks", "tableName": "Tasks"}}
				],
				"metadata": {"confidence": 0.8, "dataSources": ["tbl_tasks"]}
			},
			"performance": {"totalTime": 12}
		}`,
	})

	err := execute(t, "query", "show all tasks",
		"--workspace", "ws-1", "--user", "user_editor", "--bypass-cache")
	require.NoError(t, err)

	require.Len(t, ts.requests, 1)
	r := ts.requests[0]
	assert.Equal(t, "POST", r.Method)
	assert.Equal(t, "/api/v1/query", r.Path)
	assert.Contains(t, r.Body, `"show all tasks"`)
	assert.Contains(t, r.Body, `"ws-1"`)
	assert.Contains(t, r.Body, `"user_editor"`)
	assert.Contains(t, r.Body, `"bypassCache":true`)
}

func TestQueryCommandJSON(t *testing.T) {
	ts := withTestWorker(t, map[string]string{
		"POST /api/v1/query": `{"success": true, "response": {"blocks": [], "metadata": {"confidence": 0.2, "dataSources": []}}, "performance": {}}`,
	})

	err := execute(t, "query", "anything", "--workspace", "ws-1", "--json")
	require.NoError(t, err)
	require.Len(t, ts.requests, 1)
}

func TestQueryCommandMissingWorkspace(t *testing.T) {
	err := execute(t, "query", "show all tasks")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--workspace is required")
}

func TestQueryCommandMissingText(t *testing.T) {
	err := execute(t, "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestContextCommand(t *testing.T) {
	ts := withTestWorker(t, map[string]string{
		"GET /api/v1/workspaces/ws-1/context": `{
			"workspaceId": "ws-1",
			"tables": [{"id": "tbl_tasks", "name": "Tasks", "columnCount": 3, "rowCount": 5, "columns": [], "recentlyActive": false, "relevance": 0}],
			"pages": [],
			"user": {"id": "user_editor", "role": "editor"}
		}`,
	})

	err := execute(t, "context", "--workspace", "ws-1", "--user", "user_editor")
	require.NoError(t, err)

	require.Len(t, ts.requests, 1)
	assert.Equal(t, "/api/v1/workspaces/ws-1/context?userId=user_editor", ts.requests[0].Path)
}

func TestContextCommandMissingWorkspace(t *testing.T) {
	err := execute(t, "context")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--workspace is required")
}

func TestStatsCommand(t *testing.T) {
	ts := withTestWorker(t, map[string]string{
		"GET /api/v1/stats": `{"engine": {"queries": 7}, "uptime": "3m", "version": "dev"}`,
	})

	err := execute(t, "stats")
	require.NoError(t, err)
	require.Len(t, ts.requests, 1)
	assert.Equal(t, "/api/v1/stats", ts.requests[0].Path)
}

func TestInvalidateCommand(t *testing.T) {
	ts := withTestWorker(t, map[string]string{
		"DELETE /api/v1/cache/ws-1": `{"workspaceId": "ws-1", "removed": 4}`,
	})

	err := execute(t, "invalidate", "--workspace", "ws-1")
	require.NoError(t, err)

	require.Len(t, ts.requests, 1)
	assert.Equal(t, "DELETE", ts.requests[0].Method)
}

func TestInvalidateCommandMissingWorkspace(t *testing.T) {
	err := execute(t, "invalidate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--workspace is required")
}

func TestStatusCommandRunning(t *testing.T) {
	ts := withTestWorker(t, map[string]string{
		"GET /health":  `{"status": "ready", "version": "dev"}`,
		"GET /version": `{"version": "dev"}`,
	})

	oldPort := flagPort
	flagPort = ts.port(t)
	t.Cleanup(func() { flagPort = oldPort })

	err := execute(t, "status")
	require.NoError(t, err)
}

func TestStatusCommandStopped(t *testing.T) {
	// Port 1 is never listening.
	oldPort := flagPort
	flagPort = 1
	t.Cleanup(func() { flagPort = oldPort })

	err := execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker not running on port 1")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "switchboard dev")
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	t.Cleanup(func() { noColor = old })

	noColor = true
	assert.Equal(t, "test message", colorize(colorGreen, "test message"))

	noColor = false
	assert.True(t, strings.Contains(colorize(colorGreen, "test message"), "\033["))
}
