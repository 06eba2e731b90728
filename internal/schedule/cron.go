package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/weskerllc/cronicorn/internal/domain"
)

// Evaluator resolves a cron expression to its next fire time. Injected into
// the Governor so tests can substitute fixed schedules.
type Evaluator interface {
	// Next returns the first instant strictly after from matching expr.
	Next(expr string, from time.Time) (time.Time, error)
}

// CronEvaluator evaluates standard 5-field cron expressions.
type CronEvaluator struct{}

func (CronEvaluator) Next(expr string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, domain.ErrInvalidCronExpr
	}
	return sched.Next(from), nil
}

// ValidateCron rejects malformed expressions at endpoint creation so that
// dispatch never sees one.
func ValidateCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return domain.ErrInvalidCronExpr
	}
	return nil
}
