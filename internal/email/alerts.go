package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weskerllc/cronicorn/internal/domain"
)

// FailureStreakThreshold is the consecutive-failure count that triggers one
// alert. The alert fires only on the increment that reaches the threshold,
// so a long outage produces a single email per streak.
const FailureStreakThreshold = 5

// AlertNotifier emails the operator when an endpoint's failures pile up.
type AlertNotifier struct {
	sender Sender
	to     string
	logger *slog.Logger
}

// NewAlertNotifier returns nil when no recipient is configured; callers
// treat a nil notifier as alerting disabled.
func NewAlertNotifier(sender Sender, to string, logger *slog.Logger) *AlertNotifier {
	if to == "" {
		return nil
	}
	return &AlertNotifier{sender: sender, to: to, logger: logger.With("component", "alerts")}
}

// FailureStreak sends the streak alert. Failures here are logged, never
// propagated — alerting must not affect scheduling.
func (n *AlertNotifier) FailureStreak(ctx context.Context, ep *domain.Endpoint, failureCount int) {
	subject := fmt.Sprintf("cronicorn: endpoint %q failing (%d consecutive failures)", ep.Name, failureCount)
	body := fmt.Sprintf(
		`<p>Endpoint <strong>%s</strong> (%s %s) has failed %d times in a row.</p>
<p>Backoff is active; the AI planner may adjust the schedule. Endpoint ID: %s</p>`,
		ep.Name, ep.Method, ep.URL, failureCount, ep.ID)

	if err := n.sender.Send(ctx, n.to, subject, body); err != nil {
		n.logger.ErrorContext(ctx, "failure streak alert", "endpoint_id", ep.ID, "error", err)
	}
}
