package planner

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/domain"
)

var toolsT0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ms(v int64) *int64 { return &v }

func newSessionTools(ep *domain.Endpoint, endpoints *fakeEndpointRepo, runs *fakeRunRepo) *sessionTools {
	return &sessionTools{
		endpoint:  ep,
		floor:     10 * time.Second, // pro tier
		endpoints: endpoints,
		runs:      runs,
		clock:     clock.Fixed(toolsT0),
	}
}

func args(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestProposeInterval_Validation(t *testing.T) {
	ep := &domain.Endpoint{
		ID:            "ep-1",
		MinIntervalMs: ms(30_000),
		MaxIntervalMs: ms(600_000),
	}

	tests := []struct {
		name       string
		intervalMs int64
		wantErr    string
	}{
		{"below absolute floor", 500, "must be >="},
		{"below tier floor", 5_000, "below the tier minimum"},
		{"below endpoint minimum", 15_000, "below the endpoint minimum"},
		{"above endpoint maximum", 900_000, "above the endpoint maximum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSessionTools(ep, &fakeEndpointRepo{}, &fakeRunRepo{})

			_, err := s.proposeInterval(context.Background(),
				args(t, map[string]any{"intervalMs": tt.intervalMs}))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProposeInterval_WritesHintAndNudges(t *testing.T) {
	ep := &domain.Endpoint{ID: "ep-1"}

	var wrote *domain.AIHint
	var nudgedTo time.Time
	endpoints := &fakeEndpointRepo{
		writeAIHint: func(_ context.Context, id string, hint domain.AIHint) error {
			assert.Equal(t, "ep-1", id)
			wrote = &hint
			return nil
		},
		setNextRunAtIfEarlier: func(_ context.Context, _ string, candidate time.Time) error {
			nudgedTo = candidate
			return nil
		},
	}

	s := newSessionTools(ep, endpoints, &fakeRunRepo{})
	reason := "failure spike, tightening cadence"

	out, err := s.proposeInterval(context.Background(), args(t, map[string]any{
		"intervalMs": 15_000,
		"reason":     reason,
	}))
	require.NoError(t, err)

	require.NotNil(t, wrote)
	require.NotNil(t, wrote.IntervalMs)
	assert.Equal(t, int64(15_000), *wrote.IntervalMs)
	assert.Equal(t, toolsT0.Add(60*time.Minute), wrote.ExpiresAt, "default ttl is 60 minutes")
	require.NotNil(t, wrote.Reason)
	assert.Equal(t, reason, *wrote.Reason)

	assert.Equal(t, toolsT0.Add(15*time.Second), nudgedTo)
	assert.NotNil(t, out)
}

func TestProposeNextTime_RejectsPast(t *testing.T) {
	s := newSessionTools(&domain.Endpoint{ID: "ep-1"}, &fakeEndpointRepo{}, &fakeRunRepo{})

	_, err := s.proposeNextTime(context.Background(), args(t, map[string]any{
		"nextRunAtIso": toolsT0.Add(-time.Minute).Format(time.RFC3339),
	}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "future")
}

func TestProposeNextTime_WritesOneShot(t *testing.T) {
	target := toolsT0.Add(90 * time.Second)

	var wrote *domain.AIHint
	var nudgedTo time.Time
	endpoints := &fakeEndpointRepo{
		writeAIHint: func(_ context.Context, _ string, hint domain.AIHint) error {
			wrote = &hint
			return nil
		},
		setNextRunAtIfEarlier: func(_ context.Context, _ string, candidate time.Time) error {
			nudgedTo = candidate
			return nil
		},
	}

	s := newSessionTools(&domain.Endpoint{ID: "ep-1"}, endpoints, &fakeRunRepo{})

	_, err := s.proposeNextTime(context.Background(), args(t, map[string]any{
		"nextRunAtIso": target.Format(time.RFC3339),
	}))
	require.NoError(t, err)

	require.NotNil(t, wrote)
	require.NotNil(t, wrote.NextRunAt)
	assert.True(t, wrote.NextRunAt.Equal(target))
	assert.Equal(t, toolsT0.Add(30*time.Minute), wrote.ExpiresAt, "default ttl is 30 minutes")
	assert.True(t, nudgedTo.Equal(target))
}

func TestPauseUntil_NullResumes(t *testing.T) {
	var captured *time.Time
	called := false
	endpoints := &fakeEndpointRepo{
		setPausedUntil: func(_ context.Context, _ string, until *time.Time) error {
			captured = until
			called = true
			return nil
		},
	}

	s := newSessionTools(&domain.Endpoint{ID: "ep-1"}, endpoints, &fakeRunRepo{})

	_, err := s.pauseUntil(context.Background(), json.RawMessage(`{"untilIso": null}`))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Nil(t, captured)
}

func TestClearHints(t *testing.T) {
	cleared := false
	endpoints := &fakeEndpointRepo{
		clearAIHints: func(_ context.Context, id string) error {
			assert.Equal(t, "ep-1", id)
			cleared = true
			return nil
		},
	}

	s := newSessionTools(&domain.Endpoint{ID: "ep-1"}, endpoints, &fakeRunRepo{})

	_, err := s.clearHints(context.Background(), args(t, map[string]any{"reason": "recovered"}))
	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestGetResponseHistory_TruncatesBodies(t *testing.T) {
	long := strings.Repeat("x", 5000)
	runs := &fakeRunRepo{
		responseHistory: func(_ context.Context, _ string, limit, offset int) ([]*domain.Run, error) {
			assert.Equal(t, 10, limit, "limit defaults to the cap")
			return []*domain.Run{{
				ID:           "run-1",
				Status:       domain.RunStatusSuccess,
				StartedAt:    toolsT0,
				ResponseBody: &long,
			}}, nil
		},
	}

	s := newSessionTools(&domain.Endpoint{ID: "ep-1"}, &fakeEndpointRepo{}, runs)

	out, err := s.getResponseHistory(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	m := out.(map[string]any)
	previews := m["responses"].([]responsePreview)
	require.Len(t, previews, 1)
	assert.Len(t, *previews[0].ResponseBody, bodyPreviewMaxChars)
}

func TestGetLatestResponse_NotFound(t *testing.T) {
	runs := &fakeRunRepo{
		latestResponse: func(_ context.Context, _ string) (*domain.Run, error) {
			return nil, domain.ErrRunNotFound
		},
	}

	s := newSessionTools(&domain.Endpoint{ID: "ep-1"}, &fakeEndpointRepo{}, runs)

	out, err := s.getLatestResponse(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"found": false}, out)
}

func TestHintTTLClamps(t *testing.T) {
	assert.Equal(t, 60*time.Minute, hintTTL(0, 60))
	assert.Equal(t, 60*time.Minute, hintTTL(-5, 60))
	assert.Equal(t, maxHintTTL, hintTTL(100_000, 60))
	assert.Equal(t, 15*time.Minute, hintTTL(15, 60))
}
