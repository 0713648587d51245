package progress

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid period")

type Level string

const (
	LevelDay   Level = "day"
	LevelMonth Level = "month"
	LevelYear  Level = "year"
)

// Period is a half-open analysis window [Start, End).
type Period struct {
	Level Level
	Start time.Time
	End   time.Time
}

// ParsePeriod accepts "2006-01-02", "2006-01" or "2006".
func ParsePeriod(s string) (Period, error) {
	const op = "progress.ParsePeriod"

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return Period{Level: LevelDay, Start: t, End: t.AddDate(0, 0, 1)}, nil
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return Period{Level: LevelMonth, Start: t, End: t.AddDate(0, 1, 0)}, nil
	}
	if t, err := time.Parse("2006", s); err == nil {
		return Period{Level: LevelYear, Start: t, End: t.AddDate(1, 0, 0)}, nil
	}

	return Period{}, fmt.Errorf("%s: %w %q", op, ErrInvalidPeriod, s)
}

// ID is the period identifier used in file names.
func (p Period) ID() string {
	switch p.Level {
	case LevelDay:
		return p.Start.Format("2006-01-02")
	case LevelMonth:
		return p.Start.Format("2006-01")
	default:
		return p.Start.Format("2006")
	}
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Bucket is the breakdown key of t one level below the period: months of
// a year, days of a month or a day.
func (p Period) Bucket(t time.Time) string {
	if p.Level == LevelYear {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}
