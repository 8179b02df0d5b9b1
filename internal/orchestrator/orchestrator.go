// Package orchestrator wires routing, execution, merging, caching, and
// response structuring into the engine's single ProcessQuery entry point.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/switchboard/internal/cache"
	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/internal/privacy"
	"github.com/thebtf/switchboard/internal/router"
	"github.com/thebtf/switchboard/internal/routes"
	"github.com/thebtf/switchboard/pkg/models"
)

// ContextProvider supplies the per-request workspace snapshot.
type ContextProvider interface {
	GetContext(ctx context.Context, workspaceID, userID string) (*models.QueryContext, error)
}

// Orchestrator is the engine's single entry point. Construct with New; every
// dependency is injected, there are no package-level singletons.
type Orchestrator struct {
	cfg      *config.Config
	contexts ContextProvider
	router   *router.Router
	handlers map[models.RouteType]routes.Handler
	cache    *cache.ResultCache
	metrics  *Metrics
}

// New creates an orchestrator over the given handlers, keyed by their route
// type.
func New(cfg *config.Config, contexts ContextProvider, rt *router.Router, handlers []routes.Handler, resultCache *cache.ResultCache) *Orchestrator {
	byType := make(map[models.RouteType]routes.Handler, len(handlers))
	for _, h := range handlers {
		byType[h.Type()] = h
	}
	return &Orchestrator{
		cfg:      cfg,
		contexts: contexts,
		router:   rt,
		handlers: byType,
		cache:    resultCache,
		metrics:  NewMetrics(),
	}
}

// Metrics exposes the engine counters.
func (o *Orchestrator) Metrics() *Metrics { return o.metrics }

// Cache exposes the result cache for invalidation and stats.
func (o *Orchestrator) Cache() *cache.ResultCache { return o.cache }

// GetContext fetches the workspace snapshot through the configured provider.
func (o *Orchestrator) GetContext(ctx context.Context, workspaceID, userID string) (*models.QueryContext, error) {
	if o.contexts == nil {
		return nil, errors.New("no context provider configured")
	}
	return o.contexts.GetContext(ctx, workspaceID, userID)
}

// ProcessQuery runs the five-stage pipeline: intent classification, context
// extraction, routing, execution (with merge), and response structuring.
// Every failure mode produces an envelope, never an error: validation
// failures, handler errors, and timeouts differ only in success flag and
// block content.
func (o *Orchestrator) ProcessQuery(ctx context.Context, req *models.QueryRequest) *models.Envelope {
	start := time.Now()
	o.metrics.queries.Add(1)

	if err := validateRequest(req); err != nil {
		o.metrics.validationFailures.Add(1)
		log.Warn().Err(err).Str("workspace", req.WorkspaceID).Msg("Query request rejected")
		return o.invalidEnvelope(err, start)
	}

	requestID := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, o.budget(req.Options.MaxResponseTime))
	defer cancel()

	var perf models.Performance
	var debug *models.DebugInfo
	if req.Options.IncludeDebug {
		debug = &models.DebugInfo{
			RequestID: requestID,
			Query:     privacy.RedactSecrets(req.Query),
		}
	}

	key := cache.Key(req.Query, req.WorkspaceID)
	if !req.Options.BypassCache {
		if hit, ok := o.cache.Get(key); ok {
			o.metrics.cacheHits.Add(1)
			if debug != nil {
				debug.CacheHit = true
				debug.CacheKey = key
				debug.Confidence = hit.Metadata.Confidence
			}
			log.Debug().Str("request", requestID).Str("workspace", req.WorkspaceID).Msg("Cache hit")
			return o.finish(hit, nil, start, perf, debug)
		}
		o.metrics.cacheMisses.Add(1)
	}

	stage := time.Now()
	intent := router.ClassifyIntent(req.Query)
	perf.IntentClassificationTime = msSince(stage)

	stage = time.Now()
	qctx := o.loadContext(ctx, req.WorkspaceID, req.UserID)
	perf.ContextExtractionTime = msSince(stage)

	stage = time.Now()
	decision := o.router.Route(req.Query, intent, qctx)
	perf.RoutingTime = msSince(stage)
	o.metrics.ObserveRoute(decision.Primary.Type)

	if debug != nil {
		debug.Intent = string(intent.Type)
		debug.Route = string(decision.Primary.Type)
		if decision.Secondary != nil {
			debug.SecondaryRoute = string(decision.Secondary.Type)
		}
		debug.Confidence = decision.Confidence
		debug.ConfidenceParts = decision.Parts
		debug.Reasons = decision.Reasons
		debug.CacheKey = key
	}

	stage = time.Now()
	resp, merged := o.executeWithDeadline(ctx, req, decision, qctx)
	perf.ExecutionTime = msSince(stage)
	if debug != nil {
		debug.Merged = merged
	}
	if fb, ok := resp.Data.(*models.FallbackPayload); ok && fb.Reason == models.FallbackTimeout {
		o.metrics.timeouts.Add(1)
	}

	if succeeded(resp) {
		o.cache.Put(key, req.WorkspaceID, resp)
	}

	log.Info().
		Str("request", requestID).
		Str("workspace", req.WorkspaceID).
		Str("route", string(decision.Primary.Type)).
		Float64("confidence", decision.Confidence).
		Bool("merged", merged).
		Dur("took", time.Since(start)).
		Msg("Query processed")

	return o.finish(resp, qctx, start, perf, debug)
}

// finish stamps the processing time, runs the structuring stage, and
// assembles the envelope. The route response is stamped exactly once, here,
// after all execution and cache work is done.
func (o *Orchestrator) finish(resp *models.QueryResponse, qctx *models.QueryContext, start time.Time, perf models.Performance, debug *models.DebugInfo) *models.Envelope {
	resp.Metadata.ProcessingTime = msSince(start)

	stage := time.Now()
	structured := Structure(resp, qctx)
	perf.StructuringTime = msSince(stage)
	perf.TotalTime = msSince(start)
	o.metrics.ObserveLatency(time.Since(start))

	return &models.Envelope{
		Success:     succeeded(resp),
		Response:    structured,
		Performance: perf,
		Debug:       debug,
	}
}

// executeWithDeadline runs the decision's handlers while racing the context
// deadline. The race guarantees the caller gets a response within budget
// even when a backend ignores cancellation; an abandoned execution finishes
// into the buffered channel and is dropped.
func (o *Orchestrator) executeWithDeadline(ctx context.Context, req *models.QueryRequest, decision *models.Decision, qctx *models.QueryContext) (*models.QueryResponse, bool) {
	type outcome struct {
		resp   *models.QueryResponse
		merged bool
	}
	done := make(chan outcome, 1)
	go func() {
		resp, merged := o.executeDecision(ctx, req, decision, qctx)
		done <- outcome{resp: resp, merged: merged}
	}()

	select {
	case out := <-done:
		return out.resp, out.merged
	case <-ctx.Done():
		log.Warn().
			Str("workspace", req.WorkspaceID).
			Str("route", string(decision.Primary.Type)).
			Msg("Execution budget exceeded, abandoning handler")
		return o.timeoutResponse(qctx), false
	}
}

// executeDecision runs the primary route and, when the decision is below the
// secondary confidence threshold, the secondary route concurrently. An
// errored branch is not worth merging: the surviving branch is returned
// alone.
func (o *Orchestrator) executeDecision(ctx context.Context, req *models.QueryRequest, decision *models.Decision, qctx *models.QueryContext) (*models.QueryResponse, bool) {
	primary := o.routeRequest(req, decision, decision.Primary, qctx)
	if decision.Secondary == nil || decision.Confidence >= o.cfg.SecondaryConfidenceThreshold {
		return o.runRoute(ctx, decision.Primary, primary), false
	}

	secondary := o.routeRequest(req, decision, *decision.Secondary, qctx)
	var pResp, sResp *models.QueryResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pResp = o.runRoute(gctx, decision.Primary, primary)
		return nil
	})
	g.Go(func() error {
		sResp = o.runRoute(gctx, *decision.Secondary, secondary)
		return nil
	})
	_ = g.Wait()

	if sResp.Type == models.ResponseError {
		return pResp, false
	}
	if pResp.Type == models.ResponseError {
		return sResp, false
	}
	o.metrics.merges.Add(1)
	return Merge(pResp, sResp), true
}

func (o *Orchestrator) routeRequest(req *models.QueryRequest, decision *models.Decision, route models.Route, qctx *models.QueryContext) *routes.Request {
	return &routes.Request{
		Query:       req.Query,
		WorkspaceID: req.WorkspaceID,
		UserID:      req.UserID,
		Context:     qctx,
		Route:       route,
		Confidence:  decision.Confidence,
	}
}

// runRoute executes one route, converting any failure into an error-typed
// response carrying the handler's name. A deadline-cut handler yields the
// timeout fallback instead, matching what the select race would produce.
func (o *Orchestrator) runRoute(ctx context.Context, route models.Route, req *routes.Request) *models.QueryResponse {
	handler, ok := o.handlers[route.Type]
	if !ok {
		return errorResponse(route.Type, fmt.Errorf("no handler registered for route %s", route.Type))
	}

	resp, err := runSafely(ctx, handler, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return o.timeoutResponse(req.Context)
		}
		o.metrics.handlerErrors.Add(1)
		execErr := &models.RouteExecutionError{Route: route.Type, Err: err}
		log.Warn().Err(execErr).Str("workspace", req.WorkspaceID).Msg("Route execution failed")
		return errorResponse(route.Type, err)
	}
	return resp
}

// runSafely invokes the handler, recovering a panic into an error.
func runSafely(ctx context.Context, handler routes.Handler, req *routes.Request) (resp *models.QueryResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Execute(ctx, req)
}

func errorResponse(route models.RouteType, err error) *models.QueryResponse {
	return &models.QueryResponse{
		Type: models.ResponseError,
		Data: &models.ErrorPayload{Handler: string(route), Message: err.Error()},
		Metadata: models.ResponseMetadata{
			Source: string(route),
			Error:  err.Error(),
		},
	}
}

func (o *Orchestrator) timeoutResponse(qctx *models.QueryContext) *models.QueryResponse {
	payload := &models.FallbackPayload{
		Reason:  models.FallbackTimeout,
		Message: "The query could not finish within its time budget. Try a narrower query, or raise maxResponseTime.",
	}
	if qctx != nil {
		payload.Suggestions = routes.SuggestionsFor(qctx, maxSuggestions)
	}
	return &models.QueryResponse{
		Type: models.ResponseFallback,
		Data: payload,
		Metadata: models.ResponseMetadata{
			Source: "orchestrator",
		},
	}
}

// loadContext fetches the workspace snapshot. A provider failure degrades to
// an empty context: routing still works, and handlers that need data surface
// their own errors.
func (o *Orchestrator) loadContext(ctx context.Context, workspaceID, userID string) *models.QueryContext {
	if o.contexts == nil {
		return nil
	}
	qctx, err := o.contexts.GetContext(ctx, workspaceID, userID)
	if err != nil {
		log.Warn().Err(err).Str("workspace", workspaceID).Msg("Context extraction failed")
		return nil
	}
	return qctx
}

// budget resolves the execution budget from the caller request, bounded by
// the configured ceiling.
func (o *Orchestrator) budget(requestedMs int64) time.Duration {
	if requestedMs <= 0 {
		return o.cfg.DefaultBudget()
	}
	d := time.Duration(requestedMs) * time.Millisecond
	if ceiling := o.cfg.BudgetCeiling(); ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

// validateRequest enforces the caller request shape before any routing or
// handler work runs.
func validateRequest(req *models.QueryRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return &models.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if len(req.Query) > models.MaxQueryLength {
		return &models.ValidationError{Field: "query", Reason: fmt.Sprintf("longer than %d characters", models.MaxQueryLength)}
	}
	if req.WorkspaceID == "" {
		return &models.ValidationError{Field: "workspaceId", Reason: "must not be empty"}
	}
	if _, err := uuid.Parse(req.WorkspaceID); err != nil {
		return &models.ValidationError{Field: "workspaceId", Reason: "must be a valid UUID"}
	}
	return nil
}

func (o *Orchestrator) invalidEnvelope(err error, start time.Time) *models.Envelope {
	return &models.Envelope{
		Success: false,
		Response: models.StructuredResponse{
			Blocks:   []models.Block{{Type: models.BlockCallout, Content: err.Error()}},
			Metadata: models.ResponseMeta{DataSources: []string{}},
		},
		Performance: models.Performance{TotalTime: msSince(start)},
	}
}

// succeeded reports whether the response is a confident answer. Error and
// fallback responses flip the envelope to success false and are never
// cached.
func succeeded(resp *models.QueryResponse) bool {
	return resp.Type != models.ResponseError && resp.Type != models.ResponseFallback
}

func msSince(t time.Time) int64 {
	return time.Since(t).Milliseconds()
}
