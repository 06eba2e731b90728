package clock

import "time"

// Clock abstracts the current time so schedule math is testable.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant. Test helper.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }
