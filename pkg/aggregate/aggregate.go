// Package aggregate computes summary statistics and grades over stored
// metric records.
package aggregate

import (
	"github.com/okian/pulse/pkg/model"
)

// UnknownApp labels records without an app name.
const UnknownApp = "Unknown"

// Summary is the result of aggregating a set of records.
type Summary struct {
	AvgLCP  float64 `json:"avgLCP"`
	AvgFID  float64 `json:"avgFID"`
	AvgCLS  float64 `json:"avgCLS"`
	AvgTTFB float64 `json:"avgTTFB"`
	AvgFCP  float64 `json:"avgFCP"`
	AvgINP  float64 `json:"avgINP"`

	TotalErrors   int            `json:"totalErrors"`
	TotalSessions int            `json:"totalSessions"`
	AppBreakdown  map[string]int `json:"appBreakdown"`

	// TotalRecords and DuplicateRows expose how many rows share a session,
	// since every delivery stores a full snapshot.
	TotalRecords  int `json:"totalRecords"`
	DuplicateRows int `json:"duplicateRows"`

	// VitalSamples counts the values behind each average.
	VitalSamples map[model.VitalName]int `json:"vitalSamples"`
}

// Report is a Summary with a grade for every sampled average.
type Report struct {
	Summary
	Grades map[model.VitalName]Grade `json:"grades"`
}

// NewReport grades s.
func NewReport(s Summary) Report { //nolint:gocritic // hugeParam
	return Report{Summary: s, Grades: s.Grades()}
}

// Average returns the average of v and whether any value contributed.
func (s *Summary) Average(v model.VitalName) (float64, bool) {
	if s.VitalSamples[v] == 0 {
		return 0, false
	}
	switch v {
	case model.VitalLCP:
		return s.AvgLCP, true
	case model.VitalFID:
		return s.AvgFID, true
	case model.VitalCLS:
		return s.AvgCLS, true
	case model.VitalTTFB:
		return s.AvgTTFB, true
	case model.VitalFCP:
		return s.AvgFCP, true
	case model.VitalINP:
		return s.AvgINP, true
	}
	return 0, false
}

// Grades grades every average that has at least one sample.
func (s *Summary) Grades() map[model.VitalName]Grade {
	out := make(map[model.VitalName]Grade, len(model.Vitals))
	for _, v := range model.Vitals {
		if avg, ok := s.Average(v); ok {
			out[v] = GetPerformanceGrade(string(v), avg)
		}
	}
	return out
}

// Aggregate summarises records. Averages only consider records with at
// least one vital and, per vital, only the values that are set; an average
// without values is 0. Error and app counts cover every record.
func Aggregate(records []model.MetricEvent) Summary {
	sums := make(map[model.VitalName]float64, len(model.Vitals))
	s := Summary{
		AppBreakdown: make(map[string]int),
		VitalSamples: make(map[model.VitalName]int, len(model.Vitals)),
		TotalRecords: len(records),
	}
	sessions := make(map[string]struct{}, len(records))

	for i := range records {
		r := &records[i]
		s.TotalErrors += len(r.Errors)
		sessions[r.SessionID] = struct{}{}

		app := r.AppName
		if app == "" {
			app = UnknownApp
		}
		s.AppBreakdown[app]++

		if !r.HasAnyVital() {
			continue
		}
		for _, v := range model.Vitals {
			if value, ok := r.Vital(v); ok {
				sums[v] += value
				s.VitalSamples[v]++
			}
		}
	}

	s.TotalSessions = len(sessions)
	s.DuplicateRows = s.TotalRecords - s.TotalSessions

	avg := func(v model.VitalName) float64 {
		if n := s.VitalSamples[v]; n > 0 {
			return sums[v] / float64(n)
		}
		return 0
	}
	s.AvgLCP = avg(model.VitalLCP)
	s.AvgFID = avg(model.VitalFID)
	s.AvgCLS = avg(model.VitalCLS)
	s.AvgTTFB = avg(model.VitalTTFB)
	s.AvgFCP = avg(model.VitalFCP)
	s.AvgINP = avg(model.VitalINP)
	return s
}

// LatestPerSession keeps the last row of every session, in the order those
// rows appear in records.
func LatestPerSession(records []model.MetricEvent) []model.MetricEvent {
	last := make(map[string]int, len(records))
	for i := range records {
		last[records[i].SessionID] = i
	}
	out := make([]model.MetricEvent, 0, len(last))
	for i := range records {
		if last[records[i].SessionID] == i {
			out = append(out, records[i])
		}
	}
	return out
}
