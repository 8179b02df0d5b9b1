package models

// ResponseType identifies the payload shape of a QueryResponse.
type ResponseType string

// Response types.
const (
	ResponseData     ResponseType = "data"
	ResponseContent  ResponseType = "content"
	ResponseChart    ResponseType = "chart"
	ResponseAction   ResponseType = "action"
	ResponseError    ResponseType = "error"
	ResponseHybrid   ResponseType = "hybrid"
	ResponseFallback ResponseType = "fallback"
)

// ResponsePayload is the payload variant carried by a QueryResponse. One
// concrete type exists per response type.
type ResponsePayload interface {
	isResponsePayload()
}

// TableResult is the filtered result for one table.
type TableResult struct {
	TableID   string       `json:"tableId"`
	TableName string       `json:"tableName"`
	Columns   []ColumnInfo `json:"columns"`
	Rows      []Row        `json:"rows"`
	Truncated bool         `json:"truncated,omitempty"`
}

// TablePayload is the data-typed payload: rows per queried table.
type TablePayload struct {
	Tables []TableResult `json:"tables"`
}

func (*TablePayload) isResponsePayload() {}

// Citation points at a passage that contributed to a content response.
type Citation struct {
	PassageID string  `json:"passageId"`
	Score     float64 `json:"score"`
	Excerpt   string  `json:"excerpt,omitempty"`
}

// RetrievedPassage is one passage included in a content response.
type RetrievedPassage struct {
	ID        string  `json:"id"`
	SourceRef string  `json:"sourceRef,omitempty"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

// PassagePayload is the content-typed payload produced by retrieval.
type PassagePayload struct {
	Passages  []RetrievedPassage `json:"passages"`
	Citations []Citation         `json:"citations"`
}

func (*PassagePayload) isResponsePayload() {}

// DirectPayload is the content-typed payload produced by direct responses.
type DirectPayload struct {
	Kind   DirectKind `json:"kind"`
	Answer string     `json:"answer"`
}

func (*DirectPayload) isResponsePayload() {}

// ChartType is the visualization suggested for an aggregation result.
type ChartType string

// Chart types.
const (
	ChartLine  ChartType = "line"
	ChartBar   ChartType = "bar"
	ChartPie   ChartType = "pie"
	ChartTable ChartType = "table"
)

// AggregateValue is one computed aggregation over one column.
type AggregateValue struct {
	Column string          `json:"column"`
	Kind   AggregationKind `json:"kind"`
	Value  float64         `json:"value"`
}

// AggregateGroup holds the aggregation results for one group-by key. Key is
// empty for ungrouped aggregation.
type AggregateGroup struct {
	Key    string           `json:"key,omitempty"`
	Count  int              `json:"count"`
	Values []AggregateValue `json:"values"`
}

// ChartPayload is the chart-typed payload produced by aggregation.
type ChartPayload struct {
	ChartType ChartType        `json:"chartType"`
	TableName string           `json:"tableName,omitempty"`
	GroupBy   string           `json:"groupBy,omitempty"`
	Groups    []AggregateGroup `json:"groups"`
}

func (*ChartPayload) isResponsePayload() {}

// ActionPayload is the action-typed payload: a prepared, unexecuted action.
type ActionPayload struct {
	Action               ActionType `json:"action"`
	Target               string     `json:"target"`
	Description          string     `json:"description"`
	RequiresConfirmation bool       `json:"requiresConfirmation"`
	PermissionDenied     bool       `json:"permissionDenied,omitempty"`
	Reason               string     `json:"reason,omitempty"`
}

func (*ActionPayload) isResponsePayload() {}

// ErrorPayload is the error-typed payload for a recovered handler failure.
type ErrorPayload struct {
	Handler string `json:"handler"`
	Message string `json:"message"`
}

func (*ErrorPayload) isResponsePayload() {}

// MergedPayload carries both responses of a low-confidence merge.
type MergedPayload struct {
	Primary   *QueryResponse `json:"primary"`
	Secondary *QueryResponse `json:"secondary"`
	Merged    bool           `json:"merged"`
}

func (*MergedPayload) isResponsePayload() {}

// HybridPayload carries the un-merged sub-results of combined retrieval.
type HybridPayload struct {
	Database  *QueryResponse `json:"database,omitempty"`
	Retrieval *QueryResponse `json:"retrieval,omitempty"`
}

func (*HybridPayload) isResponsePayload() {}

// FallbackReason says why a fallback response was synthesized.
type FallbackReason string

// Fallback reasons.
const (
	FallbackTimeout       FallbackReason = "timeout"
	FallbackLowConfidence FallbackReason = "low_confidence"
	FallbackClarification FallbackReason = "clarification"
)

// FallbackPayload is the guidance-oriented payload returned instead of a
// confident answer.
type FallbackPayload struct {
	Reason          FallbackReason `json:"reason"`
	Message         string         `json:"message"`
	Suggestions     []string       `json:"suggestions,omitempty"`
	AvailableTables []string       `json:"availableTables,omitempty"`
	AvailablePages  []string       `json:"availablePages,omitempty"`
}

func (*FallbackPayload) isResponsePayload() {}

// ResponseMetadata annotates a QueryResponse. RowCount and TokenCount are
// pointers so a present zero (an empty but valid result) is distinguishable
// from not-applicable.
type ResponseMetadata struct {
	Source         string  `json:"source"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime int64   `json:"processingTime"`
	RowCount       *int    `json:"rowCount,omitempty"`
	TokenCount     *int    `json:"tokenCount,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// QueryResponse is the typed result of executing one route (or a merge of
// two). ProcessingTime is in milliseconds and is stamped by the
// orchestrator, not by handlers.
type QueryResponse struct {
	Type     ResponseType     `json:"type"`
	Data     ResponsePayload  `json:"data"`
	Metadata ResponseMetadata `json:"metadata"`
}

// Clone returns a copy sharing the (immutable by contract) payload, so the
// cache can restamp timing on a hit without mutating the stored entry.
func (r *QueryResponse) Clone() *QueryResponse {
	cp := *r
	return &cp
}

// IntPtr returns a pointer to v, for the optional count fields above.
func IntPtr(v int) *int {
	return &v
}
