package scheduler

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/requestid"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxResponseKb  = 256
	truncatedBodyMaxChars = 1000
)

// Executor performs one endpoint's HTTP request and classifies the outcome.
type Executor struct {
	client *http.Client
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{
		client: &http.Client{
			// Per-endpoint deadlines are set via context; this is a safety net.
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger: logger.With("component", "executor"),
	}
}

// Outcome is the classified result of one dispatch.
type Outcome struct {
	Status       domain.RunStatus
	DurationMs   int64
	StatusCode   *int
	ResponseBody *string
	ErrorMessage *string
}

// Execute runs the endpoint's request under its deadline and size limits.
// The lower of timeoutMs and maxExecutionTimeMs governs the whole call,
// redirects included. Duration is measured monotonically.
func (e *Executor) Execute(ctx context.Context, ep *domain.Endpoint) Outcome {
	start := time.Now()

	deadline := executionDeadline(ep)
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var bodyReader io.Reader
	if ep.Body != nil {
		bodyReader = strings.NewReader(*ep.Body)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, ep.URL, bodyReader)
	if err != nil {
		return failedOutcome(start, fmt.Sprintf("build request: %v", err))
	}

	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	reqID := requestid.Dispatch(ep.ID)
	req.Header.Set("X-Request-ID", reqID)
	ctx = requestid.WithRequestID(ctx, reqID)

	e.logger.InfoContext(ctx, "dispatching endpoint",
		"endpoint_id", ep.ID,
		"method", ep.Method,
		"url", ep.URL,
	)

	resp, err := e.client.Do(req)
	if err != nil {
		duration := time.Since(start)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.logger.WarnContext(ctx, "dispatch timed out",
				"endpoint_id", ep.ID, "deadline", deadline, "duration", duration)
			return Outcome{
				Status:       domain.RunStatusTimeout,
				DurationMs:   duration.Milliseconds(),
				ErrorMessage: strPtr(fmt.Sprintf("deadline exceeded after %s", deadline)),
			}
		}
		e.logger.ErrorContext(ctx, "dispatch failed",
			"endpoint_id", ep.ID, "error", err, "duration", duration)
		return failedOutcome(start, fmt.Sprintf("do request: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, tooLarge, err := readCapped(resp.Body, maxResponseBytes(ep))
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{
				Status:       domain.RunStatusTimeout,
				DurationMs:   duration.Milliseconds(),
				StatusCode:   intPtr(resp.StatusCode),
				ErrorMessage: strPtr(fmt.Sprintf("deadline exceeded after %s", deadline)),
			}
		}
		return Outcome{
			Status:       domain.RunStatusFailed,
			DurationMs:   duration.Milliseconds(),
			StatusCode:   intPtr(resp.StatusCode),
			ErrorMessage: strPtr(fmt.Sprintf("read response: %v", err)),
		}
	}
	if tooLarge {
		return Outcome{
			Status:       domain.RunStatusFailed,
			DurationMs:   duration.Milliseconds(),
			StatusCode:   intPtr(resp.StatusCode),
			ErrorMessage: strPtr("response_too_large"),
		}
	}

	stored := storableBody(body)

	e.logger.InfoContext(ctx, "received response",
		"endpoint_id", ep.ID,
		"status", resp.StatusCode,
		"duration", duration,
	)

	outcome := Outcome{
		DurationMs:   duration.Milliseconds(),
		StatusCode:   intPtr(resp.StatusCode),
		ResponseBody: stored,
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome.Status = domain.RunStatusSuccess
	} else {
		outcome.Status = domain.RunStatusFailed
		outcome.ErrorMessage = strPtr(fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}
	return outcome
}

// executionDeadline picks the governing deadline: the lower of timeoutMs and
// maxExecutionTimeMs, defaulting when neither is set.
func executionDeadline(ep *domain.Endpoint) time.Duration {
	deadline := defaultTimeout
	if ep.TimeoutMs != nil {
		deadline = time.Duration(*ep.TimeoutMs) * time.Millisecond
	}
	if ep.MaxExecutionTimeMs != nil {
		if d := time.Duration(*ep.MaxExecutionTimeMs) * time.Millisecond; d < deadline {
			deadline = d
		}
	}
	return deadline
}

func maxResponseBytes(ep *domain.Endpoint) int64 {
	kb := int64(defaultMaxResponseKb)
	if ep.MaxResponseSizeKb != nil {
		kb = *ep.MaxResponseSizeKb
	}
	return kb * 1024
}

// readCapped reads at most limit bytes, reporting whether the body exceeded
// the cap. The read is aborted at the limit — the remainder is not drained.
func readCapped(r io.Reader, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return nil, true, nil
	}
	return body, false, nil
}

// storableBody keeps valid JSON whole (already size-capped) and truncates
// anything else to 1000 characters.
func storableBody(body []byte) *string {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		s := string(body)
		return &s
	}
	s := string(body)
	if len(s) > truncatedBodyMaxChars {
		s = s[:truncatedBodyMaxChars]
	}
	return &s
}

func failedOutcome(start time.Time, msg string) Outcome {
	return Outcome{
		Status:       domain.RunStatusFailed,
		DurationMs:   time.Since(start).Milliseconds(),
		ErrorMessage: strPtr(msg),
	}
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }
