package entity

import "time"

// UnitRead records that a user has marked one content unit (a chapter) as
// read. Rows are unique per (user, entry, unit) so progress on one series
// never shadows another series the user tracks; rows are never deleted and
// conflicting writes resolve by last-write-wins on UpdatedAt.
type UnitRead struct {
	UserID     int64
	EntryID    int64
	UnitNumber int
	IsRead     bool
	UpdatedAt  time.Time
	DeviceID   string
	SourceUsed string
}

// SupersededBy reports whether an incoming write with the given timestamp
// should replace this record. Equal timestamps win so that a retried request
// converges rather than being dropped.
func (u *UnitRead) SupersededBy(ts time.Time) bool {
	return !ts.Before(u.UpdatedAt)
}
