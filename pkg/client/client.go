// Package client provides a Go client for the switchboard worker API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/thebtf/switchboard/pkg/models"
)

const (
	// DefaultWorkerPort mirrors the worker's default listen port.
	DefaultWorkerPort = 38180

	// HealthCheckTimeout bounds one liveness probe.
	HealthCheckTimeout = 1 * time.Second

	// StartupTimeout bounds worker startup when the client spawns it.
	StartupTimeout = 30 * time.Second

	// RequestTimeout bounds one API call.
	RequestTimeout = 30 * time.Second
)

// WorkerPort returns the worker port from the environment or the default.
func WorkerPort() int {
	if port := os.Getenv("SWITCHBOARD_WORKER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			return p
		}
	}
	return DefaultWorkerPort
}

// BaseURL returns the local worker base URL for a port.
func BaseURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// Client calls the worker HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: RequestTimeout},
	}
}

// Query runs one query through the worker and returns the envelope.
func (c *Client) Query(ctx context.Context, req *models.QueryRequest) (*models.Envelope, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/query", req)
	if err != nil {
		return nil, err
	}

	var env models.Envelope
	if err := decodeJSON(resp, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Context fetches the workspace snapshot the router sees.
func (c *Client) Context(ctx context.Context, workspaceID, userID string) (*models.QueryContext, error) {
	path := "/api/v1/workspaces/" + url.PathEscape(workspaceID) + "/context"
	if userID != "" {
		path += "?userId=" + url.QueryEscape(userID)
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var qctx models.QueryContext
	if err := decodeJSON(resp, &qctx); err != nil {
		return nil, err
	}
	return &qctx, nil
}

// Stats fetches worker statistics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil)
	if err != nil {
		return nil, err
	}

	var stats map[string]any
	if err := decodeJSON(resp, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// InvalidateCache drops every cached response for one workspace and
// returns the number of removed entries.
func (c *Client) InvalidateCache(ctx context.Context, workspaceID string) (int, error) {
	path := "/api/v1/cache/" + url.PathEscape(workspaceID)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Removed int `json:"removed"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return 0, err
	}
	return result.Removed, nil
}

// Health fetches the worker liveness report.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var health map[string]any
	if err := decodeJSON(resp, &health); err != nil {
		return nil, err
	}
	return health, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("worker not reachable, is it running? (%w)", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("worker returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("worker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// IsWorkerRunning checks if the worker answers health checks on a port.
func IsWorkerRunning(port int) bool {
	client := &http.Client{Timeout: HealthCheckTimeout}
	resp, err := client.Get(BaseURL(port) + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WorkerVersion gets the version of the running worker, or "" if it
// cannot be determined.
func WorkerVersion(port int) string {
	client := &http.Client{Timeout: HealthCheckTimeout}
	resp, err := client.Get(BaseURL(port) + "/version")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}
	return result["version"]
}

// IsPortInUse checks if the port accepts connections, regardless of health.
func IsPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// EnsureWorkerRunning ensures a healthy worker is listening and returns its
// port. A running worker with a compatible version is reused; a version
// mismatch or an unhealthy occupant of the port gets replaced.
func EnsureWorkerRunning(expectedVersion string) (int, error) {
	port := WorkerPort()

	if IsWorkerRunning(port) {
		runningVersion := WorkerVersion(port)
		if runningVersion == "" || versionsCompatible(runningVersion, expectedVersion) {
			return port, nil
		}
		fmt.Fprintf(os.Stderr, "[switchboard] Worker version mismatch (running: %s, expected: %s), restarting...\n", runningVersion, expectedVersion)
		if err := KillProcessOnPort(port); err != nil {
			fmt.Fprintf(os.Stderr, "[switchboard] Warning: failed to kill old worker: %v\n", err)
		}
		time.Sleep(500 * time.Millisecond)
	}

	if IsPortInUse(port) {
		// Occupied but not answering health checks.
		if err := KillProcessOnPort(port); err != nil {
			fmt.Fprintf(os.Stderr, "[switchboard] Warning: failed to kill unhealthy process on port %d: %v\n", port, err)
		}
		time.Sleep(500 * time.Millisecond)
	}

	workerPath := findWorkerBinary()
	if workerPath == "" {
		return 0, fmt.Errorf("worker binary not found")
	}

	cmd := exec.Command(workerPath) // #nosec G204 -- workerPath is from internal findWorkerBinary
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start worker: %w", err)
	}

	// Wait for readiness with exponential backoff.
	deadline := time.Now().Add(StartupTimeout)
	backoff := 50 * time.Millisecond
	maxBackoff := 500 * time.Millisecond

	for time.Now().Before(deadline) {
		if IsWorkerRunning(port) {
			return port, nil
		}
		time.Sleep(backoff)
		backoff = backoff * 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return 0, fmt.Errorf("worker failed to start within timeout")
}

// KillProcessOnPort finds and kills the process using the given port.
func KillProcessOnPort(port int) error {
	// lsof works on macOS and Linux.
	cmd := exec.Command("lsof", "-t", "-i", fmt.Sprintf(":%d", port)) // #nosec G204 -- port is from internal config
	output, err := cmd.Output()
	if err != nil {
		// lsof exits 1 when no process is found.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("failed to find process on port: %w", err)
	}

	pidStr := strings.TrimSpace(string(output))
	if pidStr == "" {
		return nil
	}

	for _, pid := range strings.Split(pidStr, "\n") {
		pid = strings.TrimSpace(pid)
		if pid == "" {
			continue
		}
		killCmd := exec.Command("kill", "-9", pid) // #nosec G204 -- pid is from lsof output
		if err := killCmd.Run(); err != nil {
			return fmt.Errorf("failed to kill process %s: %w", pid, err)
		}
	}

	return nil
}

// findWorkerBinary finds the worker binary path.
func findWorkerBinary() string {
	if bin := os.Getenv("SWITCHBOARD_WORKER_BIN"); bin != "" {
		if _, err := os.Stat(bin); err == nil {
			return bin
		}
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./worker",
		"./bin/worker",
		filepath.Join(home, ".switchboard", "bin", "worker"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	if path, err := exec.LookPath("switchboard-worker"); err == nil {
		return path
	}

	return ""
}

// versionsCompatible reports whether two versions share a base version,
// ignoring -dirty, -dev, and commit suffixes. Plain dev builds are
// compatible with anything, which avoids restart churn during development.
func versionsCompatible(v1, v2 string) bool {
	if v1 == "dev" || v2 == "dev" {
		return true
	}
	return extractBaseVersion(v1) == extractBaseVersion(v2)
}

// extractBaseVersion extracts the semver base from a version string,
// e.g. "v0.3.5-2-gca711a8-dirty" -> "0.3.5".
func extractBaseVersion(version string) string {
	v := strings.TrimPrefix(version, "v")
	if idx := strings.Index(v, "-"); idx > 0 {
		v = v[:idx]
	}
	return v
}
