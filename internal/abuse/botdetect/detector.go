// Package botdetect implements advisory heuristics over a user's recent
// action history. The detector looks only at repetition and regularity of
// actions, never at the size of a forward jump — binge reading and bulk
// imports are legitimate. Its signals adjust the trust score, and only a
// confirmed automation pattern gates the reward grant; the progress write is
// never blocked.
package botdetect

import (
	"math"
	"time"

	"readtrack/internal/abuse/trust"
)

// Action is one observed progress request.
type Action struct {
	At     time.Time
	Unit   int
	IsRead bool
}

// Config holds the detector thresholds. Zero values are replaced with
// defaults by NewDetector.
type Config struct {
	// MinSamples is how many recent actions are needed before the timing
	// regularity heuristic engages.
	MinSamples int

	// RegularMeanInterval is the mean inter-action interval below which
	// timing is considered suspiciously fast.
	RegularMeanInterval time.Duration

	// RegularStdDev is the interval standard deviation below which timing
	// is considered machine-regular.
	RegularStdDev time.Duration

	// RepeatThreshold is how many times the same (unit, state) may appear
	// in recent history before repeats are flagged.
	RepeatThreshold int

	// ToggleThreshold is how many read/unread flips on one unit are
	// tolerated within ToggleWindow.
	ToggleThreshold int

	// ToggleWindow is the window for counting state toggles.
	ToggleWindow time.Duration
}

// DefaultConfig returns the default detector thresholds.
func DefaultConfig() Config {
	return Config{
		MinSamples:          5,
		RegularMeanInterval: 5 * time.Second,
		RegularStdDev:       250 * time.Millisecond,
		RepeatThreshold:     2,
		ToggleThreshold:     3,
		ToggleWindow:        time.Minute,
	}
}

// Report is the advisory outcome of analyzing one incoming action.
type Report struct {
	// Violations lists the trust violations the action triggered.
	Violations []trust.ViolationKind

	// BotMatch is the hard-gate signal: true only for a confirmed
	// automation pattern. It denies the reward for this action, nothing
	// else.
	BotMatch bool
}

// Detector evaluates incoming actions against recent history.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector, filling zero config fields with defaults.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.RegularMeanInterval <= 0 {
		cfg.RegularMeanInterval = def.RegularMeanInterval
	}
	if cfg.RegularStdDev <= 0 {
		cfg.RegularStdDev = def.RegularStdDev
	}
	if cfg.RepeatThreshold <= 0 {
		cfg.RepeatThreshold = def.RepeatThreshold
	}
	if cfg.ToggleThreshold <= 0 {
		cfg.ToggleThreshold = def.ToggleThreshold
	}
	if cfg.ToggleWindow <= 0 {
		cfg.ToggleWindow = def.ToggleWindow
	}
	return &Detector{cfg: cfg}
}

// Analyze evaluates the incoming action against the user's recent history
// (oldest first, not yet including the incoming action).
//
// The three heuristics are independent and compose additively; none of them
// inspects jump magnitude.
func (d *Detector) Analyze(history []Action, incoming Action) Report {
	var report Report

	if d.exactRepeat(history, incoming) {
		report.Violations = append(report.Violations, trust.KindRepeatTarget)
	}

	if d.toggleSpam(history, incoming) {
		report.Violations = append(report.Violations, trust.KindToggleSpam)
	}

	if d.timingRegular(history, incoming) {
		report.Violations = append(report.Violations, trust.KindPatternSpam)
		report.BotMatch = true
	}

	return report
}

// exactRepeat reports whether the same (unit, state) target shows up in
// recent history at least RepeatThreshold times.
func (d *Detector) exactRepeat(history []Action, incoming Action) bool {
	count := 0
	for _, a := range history {
		if a.Unit == incoming.Unit && a.IsRead == incoming.IsRead {
			count++
		}
	}
	return count >= d.cfg.RepeatThreshold
}

// toggleSpam reports whether the unit's read state flipped more than
// ToggleThreshold times within ToggleWindow, counting the incoming action.
func (d *Detector) toggleSpam(history []Action, incoming Action) bool {
	cutoff := incoming.At.Add(-d.cfg.ToggleWindow)

	toggles := 0
	var last *Action
	for i := range history {
		a := history[i]
		if a.Unit != incoming.Unit || a.At.Before(cutoff) {
			continue
		}
		if last != nil && last.IsRead != a.IsRead {
			toggles++
		}
		last = &a
	}
	if last != nil && last.IsRead != incoming.IsRead {
		toggles++
	}
	return toggles > d.cfg.ToggleThreshold
}

// timingRegular reports whether inter-action intervals are short on average
// and near-constant — the signature of a scripted loop. Humans are fast or
// regular, rarely both.
func (d *Detector) timingRegular(history []Action, incoming Action) bool {
	times := make([]time.Time, 0, len(history)+1)
	for _, a := range history {
		times = append(times, a.At)
	}
	times = append(times, incoming.At)

	if len(times) < d.cfg.MinSamples {
		return false
	}

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}

	mean := 0.0
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))

	variance := 0.0
	for _, v := range intervals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(intervals))
	stddev := math.Sqrt(variance)

	return mean < d.cfg.RegularMeanInterval.Seconds() &&
		stddev < d.cfg.RegularStdDev.Seconds()
}
