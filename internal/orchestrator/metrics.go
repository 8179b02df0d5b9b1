package orchestrator

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thebtf/switchboard/pkg/models"
)

// latencyWindow bounds the rolling sample backing the p95 latency figure.
const latencyWindow = 512

// Metrics tracks engine-level counters for the stats endpoint.
type Metrics struct {
	queries            atomic.Int64
	cacheHits          atomic.Int64
	cacheMisses        atomic.Int64
	timeouts           atomic.Int64
	validationFailures atomic.Int64
	merges             atomic.Int64
	handlerErrors      atomic.Int64

	routes map[models.RouteType]*atomic.Int64

	mu      sync.Mutex
	samples []time.Duration
	next    int
}

// NewMetrics creates a Metrics with one counter per route type.
func NewMetrics() *Metrics {
	m := &Metrics{routes: make(map[models.RouteType]*atomic.Int64)}
	for _, rt := range []models.RouteType{
		models.RouteDatabase, models.RouteRetrieval, models.RouteAggregate,
		models.RouteHybrid, models.RouteAction, models.RouteDirect,
	} {
		m.routes[rt] = new(atomic.Int64)
	}
	return m
}

// ObserveRoute counts a routing decision. The route map is fixed at
// construction, so concurrent bumps need no lock.
func (m *Metrics) ObserveRoute(rt models.RouteType) {
	if c, ok := m.routes[rt]; ok {
		c.Add(1)
	}
}

// ObserveLatency records one end-to-end request duration in the rolling
// window, overwriting the oldest sample once the window is full.
func (m *Metrics) ObserveLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) < latencyWindow {
		m.samples = append(m.samples, d)
		return
	}
	m.samples[m.next] = d
	m.next = (m.next + 1) % latencyWindow
}

// P95Latency returns the 95th-percentile request duration over the window,
// zero when nothing has been observed.
func (m *Metrics) P95Latency() time.Duration {
	m.mu.Lock()
	sorted := make([]time.Duration, len(m.samples))
	copy(sorted, m.samples)
	m.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// GetStats returns the engine counters as a flat map.
func (m *Metrics) GetStats() map[string]any {
	routes := make(map[string]int64, len(m.routes))
	for rt, c := range m.routes {
		routes[string(rt)] = c.Load()
	}
	return map[string]any{
		"queries":             m.queries.Load(),
		"cache_hits":          m.cacheHits.Load(),
		"cache_misses":        m.cacheMisses.Load(),
		"timeouts":            m.timeouts.Load(),
		"validation_failures": m.validationFailures.Load(),
		"merges":              m.merges.Load(),
		"handler_errors":      m.handlerErrors.Load(),
		"routes":              routes,
		"p95_latency_ms":      float64(m.P95Latency().Microseconds()) / 1000,
	}
}
