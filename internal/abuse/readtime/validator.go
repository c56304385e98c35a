// Package readtime implements the read-time plausibility validator: a pure
// check comparing the elapsed time since the user's previous read against the
// minimum time the content could plausibly take to consume.
//
// The validator is advisory only. A suspicious result feeds the trust score
// and nothing else — unlike the bot-pattern hard gate, it never denies the
// reward grant. It also deliberately stays out of the way of cold starts and
// bulk jumps, where "elapsed time per unit" is meaningless.
package readtime

import "time"

// Config holds the plausibility model parameters.
type Config struct {
	// PerUnitFloor is the minimum plausible time for any unit, regardless
	// of length.
	PerUnitFloor time.Duration

	// PerPage is the additional plausible time per page of content.
	PerPage time.Duration

	// MaxJumpChecked is the largest forward jump the validator engages on.
	// Larger jumps are catch-ups or imports and are skipped.
	MaxJumpChecked int
}

// DefaultConfig returns the default plausibility parameters: a 15 second
// floor plus 2 seconds per page.
func DefaultConfig() Config {
	return Config{
		PerUnitFloor:   15 * time.Second,
		PerPage:        2 * time.Second,
		MaxJumpChecked: 2,
	}
}

// Validator checks read durations for plausibility.
type Validator struct {
	cfg Config
}

// NewValidator creates a Validator, filling zero config fields with defaults.
func NewValidator(cfg Config) *Validator {
	def := DefaultConfig()
	if cfg.PerUnitFloor <= 0 {
		cfg.PerUnitFloor = def.PerUnitFloor
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = def.PerPage
	}
	if cfg.MaxJumpChecked <= 0 {
		cfg.MaxJumpChecked = def.MaxJumpChecked
	}
	return &Validator{cfg: cfg}
}

// MinPlausible returns the minimum plausible reading time for a unit with
// the given page count.
func (v *Validator) MinPlausible(pages int) time.Duration {
	if pages < 0 {
		pages = 0
	}
	return v.cfg.PerUnitFloor + time.Duration(pages)*v.cfg.PerPage
}

// Check reports whether a read looks implausibly fast.
//
// Inputs:
//   - jump: forward distance from the previous cursor (in units)
//   - pages: page count of the target unit (0 when unknown)
//   - elapsed: time since the user's previous read
//   - explicit: client-supplied read duration, or 0 when absent
//   - hasHistory: whether the user has a previous read at all
//
// The check is skipped (returns false) for cold starts and for jumps larger
// than MaxJumpChecked. When the client supplies an explicit duration it is
// used instead of elapsed time.
func (v *Validator) Check(jump, pages int, elapsed, explicit time.Duration, hasHistory bool) bool {
	if !hasHistory {
		return false
	}
	if jump < 1 || jump > v.cfg.MaxJumpChecked {
		return false
	}

	actual := elapsed
	if explicit > 0 {
		actual = explicit
	}
	if actual <= 0 {
		return false
	}

	return actual < v.MinPlausible(pages)
}
