package grading

import "time"

// DefaultCooldown is the minimum gap between two exam attempts.
const DefaultCooldown = 10 * 24 * time.Hour

// Gate enforces the re-attempt cooldown.
type Gate struct {
	Cooldown time.Duration
}

// CanAttempt reports whether a new attempt may start at now given the last
// attempt time. A nil last attempt always passes.
func (g Gate) CanAttempt(last *time.Time, now time.Time) bool {
	if last == nil || last.IsZero() {
		return true
	}
	return now.Sub(*last) >= g.Cooldown
}

// NextAttemptAt returns the earliest time a new attempt is allowed.
func (g Gate) NextAttemptAt(last *time.Time) *time.Time {
	if last == nil || last.IsZero() {
		return nil
	}
	next := last.Add(g.Cooldown)
	return &next
}
