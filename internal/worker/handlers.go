// Package worker provides the switchboard worker service.
package worker

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/switchboard/pkg/models"
)

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// handleHealth handles liveness checks. Returns 200 immediately, even
// during initialization; use /ready for the full readiness check.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	} else if err := s.GetInitError(); err != nil {
		status = "error"
	}
	writeJSON(w, map[string]any{
		"status":  status,
		"version": s.version,
	})
}

// handleVersion returns the worker version.
func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"version": s.version,
	})
}

// handleReady handles readiness checks. Returns 200 only when the engine
// is assembled, 503 while initializing, 500 when initialization failed.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		if err := s.GetInitError(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Error(w, "service initializing", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

// requireReady is middleware that returns 503 if the engine isn't ready.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				http.Error(w, "service initialization failed: "+err.Error(), http.StatusInternalServerError)
				return
			}
			http.Error(w, "service initializing", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleQuery runs one query through the engine. The engine envelopes
// every outcome, so only an undecodable body produces a non-200 status.
func (s *Service) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, s.engine().ProcessQuery(r.Context(), &req))
}

// handleWorkspaceContext returns the context snapshot the router sees for
// a workspace. Debug surface, never cached.
func (s *Service) handleWorkspaceContext(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	userID := r.URL.Query().Get("userId")

	qctx, err := s.engine().GetContext(r.Context(), workspaceID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, qctx)
}

// handleStats reports engine metrics, search and cache counters, and rate
// limiter state.
func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	eng := s.engine()

	s.initMu.RLock()
	manager := s.searchMgr
	s.initMu.RUnlock()

	stats := map[string]any{
		"engine":    eng.Metrics().GetStats(),
		"cache":     eng.Cache().Stats(),
		"rateLimit": s.limiter.Stats(),
		"uptime":    time.Since(s.startTime).String(),
		"version":   s.version,
	}
	if manager != nil {
		stats["search"] = manager.Metrics().GetStats()
	}
	writeJSON(w, stats)
}

// handleCacheInvalidate drops every cached response for one workspace.
// Callers use it after syncing workspace data.
func (s *Service) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	removed := s.engine().Cache().InvalidateWorkspace(workspaceID)

	log.Info().Str("workspace", workspaceID).Int("removed", removed).Msg("Cache invalidated")
	writeJSON(w, map[string]any{
		"workspaceId": workspaceID,
		"removed":     removed,
	})
}
