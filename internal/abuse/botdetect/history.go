package botdetect

import (
	"sync"
	"time"

	"readtrack/internal/abuse/trust"
)

// Recorder keeps a short rolling action history per user, plus the last time
// each violation kind was applied (for cooldown checks). It is a bounded
// in-process structure: when the user cap is reached, the user idle the
// longest is evicted.
//
// History here is advisory working state, not durable data. Losing it on
// restart just means the detector warms up again.
type Recorder struct {
	mu sync.Mutex

	users      map[int64]*userHistory
	maxUsers   int
	maxActions int
}

type userHistory struct {
	actions    []Action
	violations map[trust.ViolationKind]time.Time
	lastSeen   time.Time
}

// NewRecorder creates a Recorder holding at most maxUsers users with
// maxActions recent actions each.
func NewRecorder(maxUsers, maxActions int) *Recorder {
	if maxUsers <= 0 {
		maxUsers = 10000
	}
	if maxActions <= 0 {
		maxActions = 20
	}
	return &Recorder{
		users:      make(map[int64]*userHistory),
		maxUsers:   maxUsers,
		maxActions: maxActions,
	}
}

// History returns a copy of the user's recent actions, oldest first.
func (r *Recorder) History(userID int64) []Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	uh, ok := r.users[userID]
	if !ok {
		return nil
	}
	out := make([]Action, len(uh.actions))
	copy(out, uh.actions)
	return out
}

// Record appends an action to the user's rolling history, evicting the
// oldest action past the cap and the idlest user past the user cap.
func (r *Recorder) Record(userID int64, a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uh, ok := r.users[userID]
	if !ok {
		if len(r.users) >= r.maxUsers {
			r.evictIdlest()
		}
		uh = &userHistory{
			actions:    make([]Action, 0, r.maxActions),
			violations: make(map[trust.ViolationKind]time.Time),
		}
		r.users[userID] = uh
	}

	uh.actions = append(uh.actions, a)
	if len(uh.actions) > r.maxActions {
		uh.actions = uh.actions[len(uh.actions)-r.maxActions:]
	}
	uh.lastSeen = a.At
}

// LastViolation returns when the given violation kind was last applied for
// the user. The zero time means never.
func (r *Recorder) LastViolation(userID int64, kind trust.ViolationKind) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	uh, ok := r.users[userID]
	if !ok {
		return time.Time{}
	}
	return uh.violations[kind]
}

// MarkViolation records that a violation kind was applied at the given time.
func (r *Recorder) MarkViolation(userID int64, kind trust.ViolationKind, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uh, ok := r.users[userID]
	if !ok {
		if len(r.users) >= r.maxUsers {
			r.evictIdlest()
		}
		uh = &userHistory{violations: make(map[trust.ViolationKind]time.Time)}
		r.users[userID] = uh
	}
	uh.violations[kind] = at
	if at.After(uh.lastSeen) {
		uh.lastSeen = at
	}
}

// evictIdlest drops the user with the oldest lastSeen.
// Caller must hold the lock.
func (r *Recorder) evictIdlest() {
	var (
		victim int64
		oldest time.Time
		found  bool
	)
	for id, uh := range r.users {
		if !found || uh.lastSeen.Before(oldest) {
			victim, oldest, found = id, uh.lastSeen, true
		}
	}
	if found {
		delete(r.users, victim)
	}
}
