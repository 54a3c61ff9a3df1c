package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/pulse/pkg/model"
)

// AllApps disables the app filter.
const AllApps = "all"

const dateLayout = "2006-01-02"

// Filter selects records by receipt day and app name.
type Filter struct {
	StartDate *time.Time
	EndDate   *time.Time
	AppName   string
	Limit     int
}

// Validate reports a negative limit or a date window that is inverted once
// both ends are widened to whole days in loc. A nil loc means time.Local.
func (f Filter) Validate(loc *time.Location) error {
	if f.Limit < 0 {
		return fmt.Errorf("%w: limit %d", ErrInvalidFilter, f.Limit)
	}
	if loc == nil {
		loc = time.Local
	}
	if f.StartDate != nil && f.EndDate != nil &&
		EndOfDay(*f.EndDate, loc).Before(StartOfDay(*f.StartDate, loc)) {
		return fmt.Errorf("%w: endDate before startDate", ErrInvalidFilter)
	}
	return nil
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

// matcher is a Filter resolved to concrete bounds in one location.
type matcher struct {
	from, to   int64
	hasFrom    bool
	hasTo      bool
	app        string
	filterApps bool
}

func (f Filter) matcher(loc *time.Location) matcher {
	m := matcher{app: f.AppName}
	if f.StartDate != nil {
		m.from = StartOfDay(*f.StartDate, loc).UnixMilli()
		m.hasFrom = true
	}
	if f.EndDate != nil {
		m.to = EndOfDay(*f.EndDate, loc).UnixMilli()
		m.hasTo = true
	}
	m.filterApps = f.AppName != "" && !strings.EqualFold(f.AppName, AllApps)
	return m
}

func (m matcher) match(rec *model.MetricEvent) bool {
	if m.hasFrom && rec.Timestamp < m.from {
		return false
	}
	if m.hasTo && rec.Timestamp > m.to {
		return false
	}
	if m.filterApps && rec.AppName != m.app {
		return false
	}
	return true
}

// apply filters records and keeps the newest limit matches by insertion order.
func (f Filter) apply(records []model.MetricEvent, loc *time.Location) []model.MetricEvent {
	m := f.matcher(loc)
	limit := f.limit()
	picked := make([]int, 0, min(len(records), limit))
	for i := len(records) - 1; i >= 0 && len(picked) < limit; i-- {
		if m.match(&records[i]) {
			picked = append(picked, i)
		}
	}
	out := make([]model.MetricEvent, len(picked))
	for j, i := range picked {
		out[len(picked)-1-j] = records[i].Clone()
	}
	return out
}

// StartOfDay returns midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last millisecond of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
}

// ParseDate accepts a date ("2006-01-02"), read in loc, or an RFC3339 time.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidFilter, s)
	}
	return t, nil
}
