package trust

import "time"

// ViolationKind names one class of suspicious behavior. Each kind carries a
// fixed penalty magnitude and a cooldown that stops the same kind from being
// recorded again in quick succession, bounding how fast a single burst can
// crater a score.
type ViolationKind string

const (
	// KindRepeatTarget is the same content unit being marked read repeatedly.
	// Low signal: retries and client races produce this too.
	KindRepeatTarget ViolationKind = "repeat_target"

	// KindImplausibleReadTime is a read confirmed faster than the content
	// could plausibly be consumed.
	KindImplausibleReadTime ViolationKind = "implausible_read_time"

	// KindToggleSpam is flipping a unit's read state back and forth.
	KindToggleSpam ViolationKind = "toggle_spam"

	// KindPatternSpam is machine-regular request timing — the strongest
	// automation signal and the largest penalty.
	KindPatternSpam ViolationKind = "pattern_spam"
)

// Violation describes the penalty and cooldown for one violation kind.
type Violation struct {
	Kind     ViolationKind
	Penalty  float64
	Cooldown time.Duration
}

// violationTable is ordered by severity: low-signal repetition costs the
// least, confirmed automation the most.
var violationTable = map[ViolationKind]Violation{
	KindRepeatTarget:        {Kind: KindRepeatTarget, Penalty: 0.02, Cooldown: 30 * time.Second},
	KindImplausibleReadTime: {Kind: KindImplausibleReadTime, Penalty: 0.05, Cooldown: 1 * time.Minute},
	KindToggleSpam:          {Kind: KindToggleSpam, Penalty: 0.10, Cooldown: 2 * time.Minute},
	KindPatternSpam:         {Kind: KindPatternSpam, Penalty: 0.25, Cooldown: 5 * time.Minute},
}

// Lookup returns the violation definition for a kind.
// Unknown kinds report ok=false and must not be applied.
func Lookup(kind ViolationKind) (Violation, bool) {
	v, ok := violationTable[kind]
	return v, ok
}

// MaxPenalty returns the largest penalty magnitude in the table.
func MaxPenalty() float64 {
	max := 0.0
	for _, v := range violationTable {
		if v.Penalty > max {
			max = v.Penalty
		}
	}
	return max
}

// OnCooldown reports whether a violation of the given kind recorded at
// lastApplied is still within its cooldown window at now. A violation on
// cooldown is dropped, not queued.
func OnCooldown(kind ViolationKind, lastApplied, now time.Time) bool {
	v, ok := violationTable[kind]
	if !ok {
		return true
	}
	if lastApplied.IsZero() {
		return false
	}
	return now.Sub(lastApplied) < v.Cooldown
}
