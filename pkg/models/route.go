package models

import (
	"fmt"
	"strings"
	"time"
)

// RouteType identifies one execution strategy. The set is closed: the router
// always picks from these six, never an arbitrary string.
type RouteType string

// Execution strategies.
const (
	RouteDatabase  RouteType = "database"
	RouteRetrieval RouteType = "retrieval"
	RouteAggregate RouteType = "aggregate"
	RouteHybrid    RouteType = "hybrid"
	RouteAction    RouteType = "action"
	RouteDirect    RouteType = "direct"
)

// RouteParams is the parameter variant carried by a Route. Exactly one
// concrete type exists per strategy; handlers assert the variant they expect
// and treat a mismatch as an execution error rather than guessing.
type RouteParams interface {
	isRouteParams()
}

// FilterOperator is one of the closed set of row filter operators.
type FilterOperator string

// Filter operators.
const (
	OpEquals         FilterOperator = "equals"
	OpNotEquals      FilterOperator = "not_equals"
	OpContains       FilterOperator = "contains"
	OpNotContains    FilterOperator = "not_contains"
	OpGreaterThan    FilterOperator = "greater_than"
	OpGreaterOrEqual FilterOperator = "greater_or_equal"
	OpLessThan       FilterOperator = "less_than"
	OpLessOrEqual    FilterOperator = "less_or_equal"
	OpBetween        FilterOperator = "between"
	OpIn             FilterOperator = "in"
	OpNotIn          FilterOperator = "not_in"
	OpIsEmpty        FilterOperator = "is_empty"
	OpIsNotEmpty     FilterOperator = "is_not_empty"
)

// Filter is one row-level predicate. Value holds the comparison operand
// (a []any for in/not_in); Upper holds the second operand for between.
type Filter struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
	Upper    any            `json:"upper,omitempty"`
}

// DatabaseParams targets the structured-data query strategy.
type DatabaseParams struct {
	TableIDs []string `json:"tableIds"`
	Filters  []Filter `json:"filters,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

func (*DatabaseParams) isRouteParams() {}

// SearchStrategy selects how the retrieval handler ranks passages.
type SearchStrategy string

// Search strategies.
const (
	SearchHybrid   SearchStrategy = "hybrid"
	SearchSemantic SearchStrategy = "semantic"
	SearchKeyword  SearchStrategy = "keyword"
)

// ParseSearchStrategy maps a string onto a SearchStrategy, defaulting to
// hybrid for anything unrecognized.
func ParseSearchStrategy(s string) SearchStrategy {
	switch SearchStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case SearchSemantic:
		return SearchSemantic
	case SearchKeyword:
		return SearchKeyword
	default:
		return SearchHybrid
	}
}

// RetrievalParams targets the passage-retrieval strategy.
type RetrievalParams struct {
	Strategy      SearchStrategy `json:"strategy"`
	MaxResults    int            `json:"maxResults,omitempty"`
	QueryOverride string         `json:"queryOverride,omitempty"`
}

func (*RetrievalParams) isRouteParams() {}

// AggregationKind names one numeric aggregation.
type AggregationKind string

// Aggregations.
const (
	AggCount   AggregationKind = "count"
	AggSum     AggregationKind = "sum"
	AggAverage AggregationKind = "average"
	AggMin     AggregationKind = "min"
	AggMax     AggregationKind = "max"
	AggMedian  AggregationKind = "median"
	AggP90     AggregationKind = "p90"
	AggP95     AggregationKind = "p95"
)

// TimeRange restricts aggregation to rows whose date column falls inside
// [Start, End). Column names the date column; empty means the first
// date-typed column of the table.
type TimeRange struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Column string    `json:"column,omitempty"`
}

// AggregateParams targets the numeric-aggregation strategy. Column names the
// numeric column to aggregate; empty means every numeric column.
type AggregateParams struct {
	TableIDs     []string          `json:"tableIds"`
	Aggregations []AggregationKind `json:"aggregations"`
	Column       string            `json:"column,omitempty"`
	GroupBy      string            `json:"groupBy,omitempty"`
	TimeRange    *TimeRange        `json:"timeRange,omitempty"`
}

func (*AggregateParams) isRouteParams() {}

// HybridParams targets the combined-retrieval strategy: both sub-queries run
// concurrently and are returned un-merged.
type HybridParams struct {
	Database  *DatabaseParams  `json:"database,omitempty"`
	Retrieval *RetrievalParams `json:"retrieval,omitempty"`
}

func (*HybridParams) isRouteParams() {}

// ActionType names a prepared (never executed) workspace mutation.
type ActionType string

// Action types.
const (
	ActionCreate  ActionType = "create"
	ActionUpdate  ActionType = "update"
	ActionDelete  ActionType = "delete"
	ActionShare   ActionType = "share"
	ActionArchive ActionType = "archive"
	ActionRemind  ActionType = "remind"
)

// ActionParams targets the action-preparation strategy.
type ActionParams struct {
	Action               ActionType `json:"action"`
	Target               string     `json:"target"`
	RequiresConfirmation bool       `json:"requiresConfirmation"`
}

func (*ActionParams) isRouteParams() {}

// DirectKind classifies a direct response.
type DirectKind string

// Direct response kinds. Clarification is the low-signal case: it renders as
// a fallback response listing available resources.
const (
	DirectNavigation    DirectKind = "navigation"
	DirectHelp          DirectKind = "help"
	DirectGreeting      DirectKind = "greeting"
	DirectClarification DirectKind = "clarification"
)

// DirectParams targets the direct-response strategy. Target carries the
// resolved resource name for navigation answers.
type DirectParams struct {
	Kind   DirectKind `json:"kind"`
	Target string     `json:"target,omitempty"`
	Answer string     `json:"answer,omitempty"`
}

func (*DirectParams) isRouteParams() {}

// Route pairs a strategy with its typed parameters.
type Route struct {
	Type   RouteType   `json:"type"`
	Params RouteParams `json:"params"`
}

// Decision is the router's output. Primary is always populated; the router
// degrades to a low-confidence direct/clarification route rather than
// erroring. Secondary is only consulted when Confidence is below the
// configured merge threshold. Parts is the per-component confidence
// breakdown, surfaced in debug output.
type Decision struct {
	Primary    Route              `json:"primary"`
	Secondary  *Route             `json:"secondary,omitempty"`
	Confidence float64            `json:"confidence"`
	Parts      map[string]float64 `json:"parts,omitempty"`
	Reasons    []string           `json:"reasons,omitempty"`
}

// String renders the decision for logs and debug output.
func (d *Decision) String() string {
	if d.Secondary != nil {
		return fmt.Sprintf("%s(+%s) conf=%.2f", d.Primary.Type, d.Secondary.Type, d.Confidence)
	}
	return fmt.Sprintf("%s conf=%.2f", d.Primary.Type, d.Confidence)
}
