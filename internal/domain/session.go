package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("ai session not found")

// ToolCallRecord is one tool invocation within a planner session, stored in
// call order.
type ToolCallRecord struct {
	Tool   string          `json:"tool"`
	Args   json.RawMessage `json:"args"`
	Result json.RawMessage `json:"result"`
}

// AISession is one persisted LLM analysis of an endpoint.
type AISession struct {
	ID                   string           `json:"id"`
	EndpointID           string           `json:"endpointID"`
	TenantID             string           `json:"tenantID"`
	AnalyzedAt           time.Time        `json:"analyzedAt"`
	ToolCalls            []ToolCallRecord `json:"toolCalls"`
	Reasoning            string           `json:"reasoning"`
	TokenUsage           *int             `json:"tokenUsage,omitempty"`
	DurationMs           *int64           `json:"durationMs,omitempty"`
	NextAnalysisAt       *time.Time       `json:"nextAnalysisAt,omitempty"`
	EndpointFailureCount int              `json:"endpointFailureCount"`
}
