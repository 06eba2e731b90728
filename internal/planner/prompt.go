package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
)

// buildPrompt assembles the analysis input: endpoint identity, schedule
// state, health windows, and siblings. The tool descriptions themselves
// travel in the request's tool definitions, so the prompt only frames the
// task.
func buildPrompt(ep *domain.Endpoint, job *domain.Job, health *domain.HealthSummary, siblingNames []string, now time.Time) string {
	var b strings.Builder

	b.WriteString("You are the scheduling analyst for an HTTP monitoring endpoint. ")
	b.WriteString("Inspect its recent behavior and, if warranted, adjust its schedule with the provided tools. ")
	b.WriteString("Shorten the interval during incidents, schedule one-shot probes to confirm recovery, pause during maintenance, and clear hints when the baseline is right again. ")
	b.WriteString("Finish by calling submit_analysis with your reasoning.\n\n")

	fmt.Fprintf(&b, "Endpoint: %s (%s %s)\n", ep.Name, ep.Method, ep.URL)
	if ep.Description != nil {
		fmt.Fprintf(&b, "Description: %s\n", *ep.Description)
	}
	fmt.Fprintf(&b, "Job: %s", job.Name)
	if job.Description != nil {
		fmt.Fprintf(&b, " — %s", *job.Description)
	}
	b.WriteString("\n\n")

	b.WriteString("Schedule state:\n")
	switch {
	case ep.CronExpr != nil:
		fmt.Fprintf(&b, "- baseline: cron %q\n", *ep.CronExpr)
	case ep.BaselineIntervalMs != nil:
		fmt.Fprintf(&b, "- baseline: every %s\n", time.Duration(*ep.BaselineIntervalMs)*time.Millisecond)
	}
	fmt.Fprintf(&b, "- next run at: %s\n", ep.NextRunAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- failure count: %d (backoff multiplier %dx)\n", ep.FailureCount, backoffMultiplier(ep.FailureCount))
	if ep.Paused(now) {
		fmt.Fprintf(&b, "- PAUSED until %s\n", ep.PausedUntil.Format(time.RFC3339))
	}
	if ep.HintActive(now) {
		switch {
		case ep.AIHintIntervalMs != nil:
			fmt.Fprintf(&b, "- active hint: interval %s, expires %s\n",
				time.Duration(*ep.AIHintIntervalMs)*time.Millisecond, ep.AIHintExpiresAt.Format(time.RFC3339))
		case ep.AIHintNextRunAt != nil:
			fmt.Fprintf(&b, "- active hint: one-shot at %s, expires %s\n",
				ep.AIHintNextRunAt.Format(time.RFC3339), ep.AIHintExpiresAt.Format(time.RFC3339))
		}
		if ep.AIHintReason != nil {
			fmt.Fprintf(&b, "- hint reason: %s\n", *ep.AIHintReason)
		}
	}

	b.WriteString("\nHealth:\n")
	writeWindow(&b, "1h", health.Window1h)
	writeWindow(&b, "4h", health.Window4h)
	writeWindow(&b, "24h", health.Window24h)
	fmt.Fprintf(&b, "- average duration: %.0fms\n", health.AvgDurationMs)
	fmt.Fprintf(&b, "- failure streak: %d\n", health.FailureStreak)

	if len(siblingNames) > 0 {
		fmt.Fprintf(&b, "\nSibling endpoints in this job: %s\n", strings.Join(siblingNames, ", "))
	}

	fmt.Fprintf(&b, "\nCurrent time: %s\n", now.Format(time.RFC3339))

	return b.String()
}

func writeWindow(b *strings.Builder, label string, w domain.HealthWindow) {
	total := w.SuccessCount + w.FailureCount
	if total == 0 {
		fmt.Fprintf(b, "- %s: no runs\n", label)
		return
	}
	fmt.Fprintf(b, "- %s: %d success / %d failure (%.0f%%)\n",
		label, w.SuccessCount, w.FailureCount, w.SuccessRate*100)
}

func backoffMultiplier(failureCount int) int {
	if failureCount <= 0 {
		return 1
	}
	exp := failureCount
	if exp > maxBackoffDisplay {
		exp = maxBackoffDisplay
	}
	return 1 << exp
}

const maxBackoffDisplay = 5
