package scoring

import "time"

// UpdateStreak applies one day of activity at now. The streak moves at most once
// per calendar day (in now's location): same day keeps it, the following day
// extends it, anything else restarts at 1.
func UpdateStreak(lastLogin *time.Time, streak int, now time.Time) int {
	if lastLogin == nil {
		return 1
	}
	switch gap := daysBetween(lastLogin.In(now.Location()), now); {
	case gap <= 0:
		if streak < 1 {
			return 1
		}
		return streak
	case gap == 1:
		return streak + 1
	default:
		return 1
	}
}

// daysBetween counts calendar days from a to b, ignoring clock time and DST.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
