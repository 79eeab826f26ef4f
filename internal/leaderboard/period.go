package leaderboard

import (
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	AllTime Period = "all-time"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case Daily, Weekly, Monthly, AllTime:
		return p, nil
	case "":
		return AllTime, nil
	}
	return "", apperr.Validation("unknown period", s)
}

// Since returns the start of the window containing now, in now's location.
// ok is false for all-time.
func (p Period) Since(now time.Time) (since time.Time, ok bool) {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch p {
	case Daily:
		return midnight, true
	case Weekly:
		return midnight.AddDate(0, 0, -int(now.Weekday())), true
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}

type Grouping string

const (
	Individual Grouping = "individual"
	Class      Grouping = "class"
	School     Grouping = "school"
)

func ParseGrouping(s string) (Grouping, error) {
	switch g := Grouping(s); g {
	case Individual, Class, School:
		return g, nil
	case "":
		return Individual, nil
	}
	return "", apperr.Validation("unknown leaderboard category", s)
}
