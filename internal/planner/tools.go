package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
)

// Tool names. submit_analysis is the terminal tool: its presence means the
// session ended cleanly.
const (
	toolGetLatestResponse   = "get_latest_response"
	toolGetResponseHistory  = "get_response_history"
	toolGetSiblingResponses = "get_sibling_latest_responses"
	toolProposeInterval     = "propose_interval"
	toolProposeNextTime     = "propose_next_time"
	toolPauseUntil          = "pause_until"
	toolClearHints          = "clear_hints"
	toolSubmitAnalysis      = "submit_analysis"
)

const (
	defaultIntervalTTLMinutes = 60
	defaultNextTimeTTLMinutes = 30
	minHintTTL                = time.Minute
	maxHintTTL                = 24 * time.Hour
	bodyPreviewMaxChars       = 1000
)

// sessionTools builds the per-session tool set, closed over one endpoint and
// the stores. Query tools are side-effect-free; action tools write hints
// through the endpoint store's atomic operations.
type sessionTools struct {
	endpoint  *domain.Endpoint
	floor     time.Duration
	endpoints repository.EndpointRepository
	runs      repository.RunRepository
	clock     clock.Clock
}

func (s *sessionTools) all() []Tool {
	return []Tool{
		{
			Name:        toolGetLatestResponse,
			Description: "Fetch the most recent response recorded for this endpoint.",
			Parameters:  schema(`{"type":"object","properties":{}}`),
			Handler:     s.getLatestResponse,
		},
		{
			Name:        toolGetResponseHistory,
			Description: "Fetch recent responses, newest first. limit is capped at 10.",
			Parameters: schema(`{"type":"object","properties":{
				"limit":{"type":"integer","minimum":1,"maximum":10},
				"offset":{"type":"integer","minimum":0}}}`),
			Handler: s.getResponseHistory,
		},
		{
			Name:        toolGetSiblingResponses,
			Description: "Fetch the latest response of every other endpoint in this job.",
			Parameters:  schema(`{"type":"object","properties":{}}`),
			Handler:     s.getSiblingResponses,
		},
		{
			Name:        toolProposeInterval,
			Description: "Propose a temporary polling interval in milliseconds. Overrides the baseline (and failure backoff) until the TTL expires.",
			Parameters: schema(`{"type":"object","required":["intervalMs"],"properties":{
				"intervalMs":{"type":"integer"},
				"ttlMinutes":{"type":"integer"},
				"reason":{"type":"string"}}}`),
			Handler: s.proposeInterval,
		},
		{
			Name:        toolProposeNextTime,
			Description: "Schedule a one-shot probe at an ISO-8601 time. Competes with the baseline; the earlier wins.",
			Parameters: schema(`{"type":"object","required":["nextRunAtIso"],"properties":{
				"nextRunAtIso":{"type":"string"},
				"ttlMinutes":{"type":"integer"},
				"reason":{"type":"string"}}}`),
			Handler: s.proposeNextTime,
		},
		{
			Name:        toolPauseUntil,
			Description: "Pause the endpoint until an ISO-8601 time, or resume it by passing null.",
			Parameters: schema(`{"type":"object","properties":{
				"untilIso":{"type":["string","null"]},
				"reason":{"type":"string"}}}`),
			Handler: s.pauseUntil,
		},
		{
			Name:        toolClearHints,
			Description: "Remove all AI schedule hints so the baseline schedule resumes.",
			Parameters: schema(`{"type":"object","required":["reason"],"properties":{
				"reason":{"type":"string"}}}`),
			Handler: s.clearHints,
		},
		{
			Name:        toolSubmitAnalysis,
			Description: "Finish the analysis. Call this exactly once, last, with your reasoning.",
			Parameters: schema(`{"type":"object","required":["reasoning"],"properties":{
				"reasoning":{"type":"string"},
				"actions_taken":{"type":"array","items":{"type":"string"}},
				"confidence":{"type":"number"},
				"next_analysis_in_ms":{"type":"integer"}}}`),
			Handler: s.submitAnalysis,
		},
	}
}

func schema(s string) json.RawMessage { return json.RawMessage(s) }

// ---- query tools ----

type responsePreview struct {
	RunID        string  `json:"runId"`
	Status       string  `json:"status"`
	StatusCode   *int    `json:"statusCode,omitempty"`
	ResponseBody *string `json:"responseBody,omitempty"`
	Timestamp    string  `json:"timestamp"`
	DurationMs   *int64  `json:"durationMs,omitempty"`
}

func preview(run *domain.Run) responsePreview {
	p := responsePreview{
		RunID:      run.ID,
		Status:     string(run.Status),
		StatusCode: run.StatusCode,
		Timestamp:  run.StartedAt.Format(time.RFC3339),
		DurationMs: run.DurationMs,
	}
	if run.ResponseBody != nil {
		body := *run.ResponseBody
		if len(body) > bodyPreviewMaxChars {
			body = body[:bodyPreviewMaxChars]
		}
		p.ResponseBody = &body
	}
	return p
}

func (s *sessionTools) getLatestResponse(ctx context.Context, _ json.RawMessage) (any, error) {
	run, err := s.runs.LatestResponse(ctx, s.endpoint.ID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return map[string]any{"found": false}, nil
		}
		return nil, fmt.Errorf("latest response unavailable")
	}
	p := preview(run)
	return map[string]any{
		"found":        true,
		"status":       p.Status,
		"statusCode":   p.StatusCode,
		"responseBody": p.ResponseBody,
		"timestamp":    p.Timestamp,
	}, nil
}

func (s *sessionTools) getResponseHistory(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %v", err)
		}
	}
	if in.Limit <= 0 || in.Limit > 10 {
		in.Limit = 10
	}
	if in.Offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0")
	}

	runs, err := s.runs.ResponseHistory(ctx, s.endpoint.ID, in.Limit, in.Offset)
	if err != nil {
		return nil, fmt.Errorf("response history unavailable")
	}

	previews := make([]responsePreview, 0, len(runs))
	for _, run := range runs {
		previews = append(previews, preview(run))
	}
	return map[string]any{
		"count":     len(previews),
		"responses": previews,
		"hasMore":   len(previews) == in.Limit,
		"pagination": map[string]int{
			"limit":  in.Limit,
			"offset": in.Offset,
		},
	}, nil
}

func (s *sessionTools) getSiblingResponses(ctx context.Context, _ json.RawMessage) (any, error) {
	siblings, err := s.endpoints.ListByJob(ctx, s.endpoint.JobID)
	if err != nil {
		return nil, fmt.Errorf("siblings unavailable")
	}
	names := make(map[string]string, len(siblings))
	for _, sib := range siblings {
		names[sib.ID] = sib.Name
	}

	latest, err := s.runs.SiblingLatestResponses(ctx, s.endpoint.JobID, s.endpoint.ID)
	if err != nil {
		return nil, fmt.Errorf("sibling responses unavailable")
	}

	type siblingPreview struct {
		EndpointID string `json:"endpointId"`
		Name       string `json:"name"`
		responsePreview
	}
	out := make([]siblingPreview, 0, len(latest))
	for _, run := range latest {
		out = append(out, siblingPreview{
			EndpointID:      run.EndpointID,
			Name:            names[run.EndpointID],
			responsePreview: preview(run),
		})
	}
	return map[string]any{"count": len(out), "siblings": out}, nil
}

// ---- action tools ----

func (s *sessionTools) proposeInterval(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		IntervalMs int64   `json:"intervalMs"`
		TTLMinutes int     `json:"ttlMinutes"`
		Reason     *string `json:"reason"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %v", err)
	}
	if err := s.validateInterval(in.IntervalMs); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(hintTTL(in.TTLMinutes, defaultIntervalTTLMinutes))
	if err := s.endpoints.WriteAIHint(ctx, s.endpoint.ID, domain.AIHint{
		IntervalMs: &in.IntervalMs,
		ExpiresAt:  expiresAt,
		Reason:     in.Reason,
	}); err != nil {
		return nil, fmt.Errorf("write hint failed")
	}

	// Nudge so the new cadence takes effect now rather than at the next
	// scheduled run. Never pushes later.
	next := now.Add(time.Duration(in.IntervalMs) * time.Millisecond)
	if err := s.endpoints.SetNextRunAtIfEarlier(ctx, s.endpoint.ID, next); err != nil {
		return nil, fmt.Errorf("nudge failed")
	}

	return map[string]any{
		"applied":    true,
		"intervalMs": in.IntervalMs,
		"expiresAt":  expiresAt.Format(time.RFC3339),
	}, nil
}

func (s *sessionTools) proposeNextTime(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		NextRunAtIso string  `json:"nextRunAtIso"`
		TTLMinutes   int     `json:"ttlMinutes"`
		Reason       *string `json:"reason"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %v", err)
	}
	nextRunAt, err := time.Parse(time.RFC3339, in.NextRunAtIso)
	if err != nil {
		return nil, fmt.Errorf("nextRunAtIso must be RFC 3339")
	}
	now := s.clock.Now()
	if !nextRunAt.After(now) {
		return nil, fmt.Errorf("nextRunAtIso must be in the future")
	}

	expiresAt := now.Add(hintTTL(in.TTLMinutes, defaultNextTimeTTLMinutes))
	if err := s.endpoints.WriteAIHint(ctx, s.endpoint.ID, domain.AIHint{
		NextRunAt: &nextRunAt,
		ExpiresAt: expiresAt,
		Reason:    in.Reason,
	}); err != nil {
		return nil, fmt.Errorf("write hint failed")
	}
	if err := s.endpoints.SetNextRunAtIfEarlier(ctx, s.endpoint.ID, nextRunAt); err != nil {
		return nil, fmt.Errorf("nudge failed")
	}

	return map[string]any{
		"applied":   true,
		"nextRunAt": nextRunAt.Format(time.RFC3339),
		"expiresAt": expiresAt.Format(time.RFC3339),
	}, nil
}

func (s *sessionTools) pauseUntil(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		UntilIso *string `json:"untilIso"`
		Reason   *string `json:"reason"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %v", err)
	}

	if in.UntilIso == nil {
		if err := s.endpoints.SetPausedUntil(ctx, s.endpoint.ID, nil); err != nil {
			return nil, fmt.Errorf("resume failed")
		}
		return map[string]any{"paused": false}, nil
	}

	until, err := time.Parse(time.RFC3339, *in.UntilIso)
	if err != nil {
		return nil, fmt.Errorf("untilIso must be RFC 3339")
	}
	if !until.After(s.clock.Now()) {
		return nil, fmt.Errorf("untilIso must be in the future")
	}
	if err := s.endpoints.SetPausedUntil(ctx, s.endpoint.ID, &until); err != nil {
		return nil, fmt.Errorf("pause failed")
	}
	return map[string]any{"paused": true, "until": until.Format(time.RFC3339)}, nil
}

func (s *sessionTools) clearHints(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %v", err)
	}
	if err := s.endpoints.ClearAIHints(ctx, s.endpoint.ID); err != nil {
		return nil, fmt.Errorf("clear hints failed")
	}
	return map[string]any{"cleared": true}, nil
}

func (s *sessionTools) submitAnalysis(_ context.Context, args json.RawMessage) (any, error) {
	var in analysisArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %v", err)
	}
	if in.Reasoning == "" {
		return nil, fmt.Errorf("reasoning is required")
	}
	return map[string]any{"recorded": true}, nil
}

// analysisArgs is the terminal tool's payload; the worker also parses it out
// of the session's final call.
type analysisArgs struct {
	Reasoning        string   `json:"reasoning"`
	ActionsTaken     []string `json:"actions_taken"`
	Confidence       *float64 `json:"confidence"`
	NextAnalysisInMs *int64   `json:"next_analysis_in_ms"`
}

// validateInterval rejects intervals outside the tier floor and the
// endpoint's own clamp bounds.
func (s *sessionTools) validateInterval(intervalMs int64) error {
	if intervalMs < domain.MinIntervalFloorMs {
		return fmt.Errorf("intervalMs must be >= %d", domain.MinIntervalFloorMs)
	}
	if floorMs := s.floor.Milliseconds(); intervalMs < floorMs {
		return fmt.Errorf("intervalMs %d is below the tier minimum %d", intervalMs, floorMs)
	}
	if s.endpoint.MinIntervalMs != nil && intervalMs < *s.endpoint.MinIntervalMs {
		return fmt.Errorf("intervalMs %d is below the endpoint minimum %d", intervalMs, *s.endpoint.MinIntervalMs)
	}
	if s.endpoint.MaxIntervalMs != nil && intervalMs > *s.endpoint.MaxIntervalMs {
		return fmt.Errorf("intervalMs %d is above the endpoint maximum %d", intervalMs, *s.endpoint.MaxIntervalMs)
	}
	return nil
}

// hintTTL clamps a model-supplied TTL into a sane range instead of
// rejecting, so a sloppy model still lands a usable hint.
func hintTTL(minutes, fallback int) time.Duration {
	if minutes <= 0 {
		minutes = fallback
	}
	ttl := time.Duration(minutes) * time.Minute
	if ttl < minHintTTL {
		return minHintTTL
	}
	if ttl > maxHintTTL {
		return maxHintTTL
	}
	return ttl
}
