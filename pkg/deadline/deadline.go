// Package deadline centralizes the now-vs-due comparison used by the sweep
// and by read paths that display overdue status, so the rule is defined once.
package deadline

import "time"

// Passed reports whether a deadline has elapsed. A deadline is considered
// passed the instant now reaches it, so a notice due "now" is already
// sweepable.
func Passed(due, now time.Time) bool {
	return !now.Before(due)
}

// Remaining returns the time left until due, clamped to zero once the
// deadline has passed.
func Remaining(due, now time.Time) time.Duration {
	if Passed(due, now) {
		return 0
	}
	return due.Sub(now)
}
