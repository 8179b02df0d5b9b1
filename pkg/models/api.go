package models

// Limits on the caller-facing request, enforced before any handler runs.
const (
	// MinQueryLength is the shortest accepted query.
	MinQueryLength = 1
	// MaxQueryLength is the longest accepted query.
	MaxQueryLength = 1000
)

// QueryOptions tunes one request.
type QueryOptions struct {
	IncludeDebug    bool  `json:"includeDebug,omitempty"`
	BypassCache     bool  `json:"bypassCache,omitempty"`
	MaxResponseTime int64 `json:"maxResponseTime,omitempty"`
}

// QueryRequest is the caller-facing request body.
type QueryRequest struct {
	Query       string       `json:"query"`
	WorkspaceID string       `json:"workspaceId"`
	UserID      string       `json:"userId,omitempty"`
	Options     QueryOptions `json:"options,omitempty"`
}

// BlockType identifies a renderable block.
type BlockType string

// Block types understood by clients.
const (
	BlockText      BlockType = "text"
	BlockTable     BlockType = "table"
	BlockChart     BlockType = "chart"
	BlockAction    BlockType = "action"
	BlockCallout   BlockType = "callout"
	BlockCitations BlockType = "citations"
)

// Block is one renderable unit of the structured response. Text-like blocks
// carry Content; data-bearing blocks carry Data.
type Block struct {
	Type    BlockType `json:"type"`
	Content string    `json:"content,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// ResponseMeta summarizes the structured response for the caller.
type ResponseMeta struct {
	Confidence  float64  `json:"confidence"`
	DataSources []string `json:"dataSources"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// StructuredResponse is the renderable body of an Envelope.
type StructuredResponse struct {
	Blocks   []Block      `json:"blocks"`
	Metadata ResponseMeta `json:"metadata"`
}

// Performance breaks the request down by pipeline stage, in milliseconds.
type Performance struct {
	IntentClassificationTime int64 `json:"intentClassificationTime"`
	ContextExtractionTime    int64 `json:"contextExtractionTime"`
	RoutingTime              int64 `json:"routingTime"`
	ExecutionTime            int64 `json:"executionTime"`
	StructuringTime          int64 `json:"structuringTime"`
	TotalTime                int64 `json:"totalTime"`
}

// DebugInfo is attached when options.includeDebug is set. Query is redacted
// before inclusion.
type DebugInfo struct {
	RequestID       string             `json:"requestId"`
	Query           string             `json:"query"`
	Intent          string             `json:"intent,omitempty"`
	Route           string             `json:"route,omitempty"`
	SecondaryRoute  string             `json:"secondaryRoute,omitempty"`
	Confidence      float64            `json:"confidence"`
	ConfidenceParts map[string]float64 `json:"confidenceParts,omitempty"`
	Reasons         []string           `json:"reasons,omitempty"`
	CacheHit        bool               `json:"cacheHit"`
	CacheKey        string             `json:"cacheKey,omitempty"`
	Merged          bool               `json:"merged,omitempty"`
}

// Envelope is the caller-facing response. Validation failures, timeouts, and
// internal errors all produce this same shape, varying only in Success and
// block content.
type Envelope struct {
	Success     bool               `json:"success"`
	Response    StructuredResponse `json:"response"`
	Performance Performance        `json:"performance"`
	Debug       *DebugInfo         `json:"debug,omitempty"`
}
