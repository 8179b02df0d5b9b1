package router

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/pkg/models"
)

const (
	// clarificationConfidence is assigned when no strategy clears the floor
	// and the right response is to ask the user to rephrase.
	clarificationConfidence = 0.3

	// noSignalConfidence is assigned when the query has no significant terms
	// at all.
	noSignalConfidence = 0.2

	// retrievalBaseConfidence is the floor for passage retrieval on
	// contentful free text. Retrieval does not require the query to name a
	// resource, so it keeps a modest base even when nothing matches by name.
	retrievalBaseConfidence = 0.45

	// databaseNamedFloor is the floor when the query fully names a table.
	// "tasks" alone carries no verb, but listing the named table is still
	// the most plausible reading.
	databaseNamedFloor = 0.5

	// secondaryFloor is the minimum confidence for a candidate to be worth
	// executing as a secondary route.
	secondaryFloor = 0.25

	// hybridGap is the largest primary/runner-up confidence gap at which a
	// database and a retrieval candidate are promoted to one hybrid route.
	hybridGap = 0.15

	// maxRouteTables caps how many equally-matched tables one route targets.
	maxRouteTables = 3
)

// typeRank breaks confidence ties. Structured-data strategies outrank
// free-text retrieval at equal plausibility.
var typeRank = map[models.RouteType]int{
	models.RouteDatabase:  0,
	models.RouteAggregate: 1,
	models.RouteHybrid:    2,
	models.RouteAction:    3,
	models.RouteDirect:    4,
	models.RouteRetrieval: 5,
}

// candidate is one scored strategy under consideration. natural is the
// calculator output before any base-confidence floor, used to tell "really
// plausible" from "kept alive as a fallback".
type candidate struct {
	route   models.Route
	conf    float64
	natural float64
	parts   map[string]float64
	reasons []string
}

// Router turns a classified query plus workspace context into a Decision.
// It holds no per-request state and is safe for concurrent use.
type Router struct {
	cfg  *config.Config
	calc *Calculator
	now  func() time.Time
}

// New creates a Router.
func New(cfg *config.Config) *Router {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Router{
		cfg:  cfg,
		calc: NewCalculator(DefaultConfidenceWeights()),
		now:  time.Now,
	}
}

// Route selects the execution strategy for a query. It never fails: when no
// strategy is plausible it returns a low-confidence clarification route. A
// secondary route is attached only when the primary's confidence falls below
// the configured threshold.
func (r *Router) Route(query string, intent Intent, qctx *models.QueryContext) *models.Decision {
	if qctx == nil {
		qctx = &models.QueryContext{}
	}
	now := r.now()
	terms := intent.Terms
	if terms == nil {
		terms = map[string]bool{}
	}

	tables := matchTables(terms, qctx)
	pages := matchPages(terms, qctx, now)
	cands := r.buildCandidates(query, intent, qctx, tables, pages, now)
	cands = append(cands, r.clarificationCandidate(terms))

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].conf != cands[j].conf {
			return cands[i].conf > cands[j].conf
		}
		return typeRank[cands[i].route.Type] < typeRank[cands[j].route.Type]
	})
	cands = promoteHybrid(cands)

	primary := cands[0]
	decision := &models.Decision{
		Primary:    primary.route,
		Confidence: round2(primary.conf),
		Parts:      primary.parts,
	}
	decision.Reasons = append(decision.Reasons, fmt.Sprintf("intent %s", intent.Type))
	decision.Reasons = append(decision.Reasons, primary.reasons...)

	if decision.Confidence < r.cfg.SecondaryConfidenceThreshold {
		if sec := pickSecondary(cands, primary); sec != nil {
			decision.Secondary = &sec.route
			decision.Reasons = append(decision.Reasons,
				fmt.Sprintf("confidence below %.2f, secondary %s attached", r.cfg.SecondaryConfidenceThreshold, sec.route.Type))
		}
	}

	log.Debug().
		Stringer("decision", decision).
		Int("candidates", len(cands)).
		Msg("routing decision")
	return decision
}

// buildCandidates assembles the strategy candidates appropriate for the
// classified intent. Candidates that cannot apply (no matched table, no
// parsable action) are simply not built.
func (r *Router) buildCandidates(query string, intent Intent, qctx *models.QueryContext, tables, pages []resourceMatch, now time.Time) []candidate {
	var cands []candidate

	switch intent.Type {
	case IntentGreeting:
		cands = append(cands, directCandidate(models.DirectGreeting, 0.95))
		return cands
	case IntentHelp:
		cands = append(cands, directCandidate(models.DirectHelp, 0.9))
		return cands
	case IntentNavigation:
		cands = append(cands, navigationCandidate(tables, pages))
		if c, ok := r.retrievalCandidate(query, intent, pages, false); ok {
			cands = append(cands, c)
		}
		return cands
	case IntentAction:
		if c, ok := r.actionCandidate(query, tables, pages); ok {
			cands = append(cands, c)
		}
		return cands
	}

	// Query-like intents: build every applicable data strategy and let the
	// scores decide.
	if len(tables) > 0 {
		if intent.Type == IntentAggregation {
			cands = append(cands, r.aggregateCandidate(query, intent, tables, now))
		}
		cands = append(cands, r.databaseCandidate(query, intent, qctx, tables, now))
	}
	if c, ok := r.retrievalCandidate(query, intent, pages, true); ok {
		cands = append(cands, c)
	}
	return cands
}

func directCandidate(kind models.DirectKind, conf float64) candidate {
	return candidate{
		route:   models.Route{Type: models.RouteDirect, Params: &models.DirectParams{Kind: kind}},
		conf:    conf,
		natural: conf,
		parts:   map[string]float64{"intent": conf, "final": conf},
		reasons: []string{fmt.Sprintf("direct %s response", kind)},
	}
}

// navigationCandidate answers "where is X" with the best-matching resource.
// Without a match it stays a weak candidate whose handler explains that
// nothing was found.
func navigationCandidate(tables, pages []resourceMatch) candidate {
	target := ""
	score := 0.0
	if len(tables) > 0 {
		target, score = tables[0].name, tables[0].score
	}
	if len(pages) > 0 && pages[0].score > score {
		target, score = pages[0].name, pages[0].score
	}

	conf := 0.4
	reasons := []string{"navigation request without a matching resource"}
	if target != "" {
		conf = 0.55 + 0.4*score
		reasons = []string{fmt.Sprintf("navigation target %q matched %.2f", target, score)}
	}
	return candidate{
		route:   models.Route{Type: models.RouteDirect, Params: &models.DirectParams{Kind: models.DirectNavigation, Target: target}},
		conf:    conf,
		natural: conf,
		parts:   map[string]float64{"intent": 0.4, "resource": score, "final": conf},
		reasons: reasons,
	}
}

func (r *Router) actionCandidate(query string, tables, pages []resourceMatch) (candidate, bool) {
	action, target, ok := parseAction(query)
	if !ok {
		return candidate{}, false
	}

	resource, recency := 0.0, 0.0
	if len(tables) > 0 {
		resource, recency = tables[0].score, tables[0].recency
	}
	if len(pages) > 0 && pages[0].score > resource {
		resource, recency = pages[0].score, pages[0].recency
	}

	bound := 0.0
	if target != "" {
		bound = 1.0
	}
	comps := r.calc.CalculateComponents(Signals{
		IntentStrength: 1.0,
		ResourceMatch:  resource,
		FilterMatch:    bound,
		Recency:        recency,
	})
	return candidate{
		route: models.Route{Type: models.RouteAction, Params: &models.ActionParams{
			Action:               action,
			Target:               target,
			RequiresConfirmation: requiresConfirmation(action),
		}},
		conf:    comps.Final,
		natural: comps.Final,
		parts:   comps.Map(),
		reasons: []string{fmt.Sprintf("prepared %s action targeting %q", action, target)},
	}, true
}

func (r *Router) aggregateCandidate(query string, intent Intent, tables []resourceMatch, now time.Time) candidate {
	best := tables[0]
	kinds, explicit := parseAggregations(query)
	params := &models.AggregateParams{
		TableIDs:     topTableIDs(tables),
		Aggregations: kinds,
		TimeRange:    parseTimeRange(query, now),
	}
	if col := matchColumn(intent.Terms, best.table, models.ColumnNumber); col != nil {
		params.Column = col.Name
	}
	params.GroupBy = parseGroupBy(query, best.table)

	strength := patternStrength(query, IntentAggregation)
	if explicit {
		// A named aggregation ("how many", "average ...") is decisive on
		// its own.
		strength = 1.0
	}
	bound := 0.0
	if params.Column != "" || params.GroupBy != "" || params.TimeRange != nil {
		bound = 1.0
	}
	comps := r.calc.CalculateComponents(Signals{
		IntentStrength: strength,
		ResourceMatch:  best.score,
		FilterMatch:    bound,
		Recency:        best.recency,
	})

	reasons := []string{fmt.Sprintf("aggregation %v over table %q", kinds, best.name)}
	if params.GroupBy != "" {
		reasons = append(reasons, fmt.Sprintf("grouped by %q", params.GroupBy))
	}
	return candidate{
		route:   models.Route{Type: models.RouteAggregate, Params: params},
		conf:    comps.Final,
		natural: comps.Final,
		parts:   comps.Map(),
		reasons: reasons,
	}
}

func (r *Router) databaseCandidate(query string, intent Intent, qctx *models.QueryContext, tables []resourceMatch, now time.Time) candidate {
	best := tables[0]
	filters := extractFilters(query, intent.Terms, best.table, qctx.User.ID, now)

	// A relative date phrase becomes a between filter on the table's date
	// column so "tasks due this week" needs no separate time-range field.
	if tr := parseTimeRange(query, now); tr != nil {
		if col := dateColumn(intent.Terms, best.table); col != nil && !hasFilterOn(filters, col.Name) {
			filters = append(filters, models.Filter{
				Column:   col.Name,
				Operator: models.OpBetween,
				Value:    tr.Start.Format(time.RFC3339),
				Upper:    tr.End.Format(time.RFC3339),
			})
		}
	}

	bound := 0.0
	if len(filters) > 0 {
		bound = 1.0
	}
	comps := r.calc.CalculateComponents(Signals{
		IntentStrength: patternStrength(query, IntentDataQuery),
		ResourceMatch:  best.score,
		FilterMatch:    bound,
		Recency:        best.recency,
	})

	conf := comps.Final
	if best.score == 1.0 && conf < databaseNamedFloor {
		conf = databaseNamedFloor
	}

	reasons := []string{fmt.Sprintf("table %q matched %.2f", best.name, best.score)}
	for _, f := range filters {
		reasons = append(reasons, fmt.Sprintf("filter %s %s", f.Column, f.Operator))
	}
	return candidate{
		route: models.Route{Type: models.RouteDatabase, Params: &models.DatabaseParams{
			TableIDs: topTableIDs(tables),
			Filters:  filters,
		}},
		conf:    conf,
		natural: comps.Final,
		parts:   comps.Map(),
		reasons: reasons,
	}
}

// retrievalCandidate scores free-text passage retrieval. withBase keeps the
// candidate alive at retrievalBaseConfidence for query-like intents even
// when no page is named; imperative intents only get retrieval when it
// scores on its own.
func (r *Router) retrievalCandidate(query string, intent Intent, pages []resourceMatch, withBase bool) (candidate, bool) {
	pageScore, recency := 0.0, 0.0
	pageName := ""
	if len(pages) > 0 {
		pageScore, recency, pageName = pages[0].score, pages[0].recency, pages[0].name
	}
	comps := r.calc.CalculateComponents(Signals{
		IntentStrength: patternStrength(query, IntentContentSearch),
		ResourceMatch:  pageScore,
		Recency:        recency,
	})

	conf := comps.Final
	if withBase && len(intent.Terms) > 0 && conf < retrievalBaseConfidence {
		conf = retrievalBaseConfidence
	}
	if conf <= 0 {
		return candidate{}, false
	}

	reasons := []string{"free text eligible for passage retrieval"}
	if pageName != "" {
		reasons = []string{fmt.Sprintf("page %q matched %.2f", pageName, pageScore)}
	}
	return candidate{
		route:   models.Route{Type: models.RouteRetrieval, Params: &models.RetrievalParams{Strategy: models.SearchHybrid}},
		conf:    conf,
		natural: comps.Final,
		parts:   comps.Map(),
		reasons: reasons,
	}, true
}

func (r *Router) clarificationCandidate(terms map[string]bool) candidate {
	conf := clarificationConfidence
	if len(terms) == 0 {
		conf = noSignalConfidence
	}
	c := directCandidate(models.DirectClarification, conf)
	c.reasons = []string{"no strategy cleared the confidence floor"}
	return c
}

// promoteHybrid replaces the top candidate with a combined route when the
// two leaders are a structured query and a genuinely plausible retrieval
// within hybridGap of each other. The query spans both worlds; run both.
func promoteHybrid(cands []candidate) []candidate {
	if len(cands) < 2 {
		return cands
	}
	a, b := cands[0], cands[1]
	var db, retr *candidate
	for _, c := range []*candidate{&a, &b} {
		switch c.route.Type {
		case models.RouteDatabase:
			db = c
		case models.RouteRetrieval:
			retr = c
		}
	}
	if db == nil || retr == nil {
		return cands
	}
	if a.conf-b.conf > hybridGap || db.conf < retrievalBaseConfidence || retr.natural < retrievalBaseConfidence {
		return cands
	}

	dbParams := db.route.Params.(*models.DatabaseParams)
	retrParams := retr.route.Params.(*models.RetrievalParams)
	hybrid := candidate{
		route: models.Route{Type: models.RouteHybrid, Params: &models.HybridParams{
			Database:  dbParams,
			Retrieval: retrParams,
		}},
		conf:    a.conf,
		natural: a.conf,
		parts:   a.parts,
		reasons: append(append([]string{"query spans structured data and content"}, db.reasons...), retr.reasons...),
	}
	return append([]candidate{hybrid}, cands...)
}

// pickSecondary returns the best runner-up worth executing alongside a
// low-confidence primary. Direct routes are never secondaries, and a hybrid
// primary already covers its component strategies.
func pickSecondary(cands []candidate, primary candidate) *candidate {
	for i := range cands {
		c := &cands[i]
		if c.route.Type == primary.route.Type || c.route.Type == models.RouteDirect {
			continue
		}
		if primary.route.Type == models.RouteHybrid &&
			(c.route.Type == models.RouteDatabase || c.route.Type == models.RouteRetrieval) {
			continue
		}
		if c.conf < secondaryFloor {
			continue
		}
		return c
	}
	return nil
}

func topTableIDs(tables []resourceMatch) []string {
	ids := make([]string, 0, 1)
	for _, t := range tables {
		if t.score < tables[0].score || len(ids) >= maxRouteTables {
			break
		}
		ids = append(ids, t.id)
	}
	return ids
}

// dateColumn picks the column a date phrase should constrain: one the query
// mentions by name, else the table's first date column.
func dateColumn(terms map[string]bool, table *models.TableInfo) *models.ColumnInfo {
	if col := matchColumn(terms, table, models.ColumnDate); col != nil {
		return col
	}
	for i := range table.Columns {
		if table.Columns[i].Type == models.ColumnDate {
			return &table.Columns[i]
		}
	}
	return nil
}

func hasFilterOn(filters []models.Filter, column string) bool {
	for _, f := range filters {
		if f.Column == column {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
