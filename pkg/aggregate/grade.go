package aggregate

import (
	"github.com/okian/pulse/pkg/model"
)

// Grade classifies a vital value.
type Grade string

const (
	GradeGood             Grade = "good"
	GradeNeedsImprovement Grade = "needs_improvement"
	GradePoor             Grade = "poor"
	GradeUnknown          Grade = "Unknown"
)

// threshold holds the inclusive upper bounds of good and needs_improvement.
type threshold struct {
	good float64
	poor float64
}

var thresholds = map[model.VitalName]threshold{
	model.VitalLCP:  {good: 2500, poor: 4000},
	model.VitalFID:  {good: 100, poor: 300},
	model.VitalINP:  {good: 100, poor: 300},
	model.VitalCLS:  {good: 0.1, poor: 0.25},
	model.VitalFCP:  {good: 1800, poor: 3000},
	model.VitalTTFB: {good: 800, poor: 1800},
}

// GetPerformanceGrade grades value for the vital called name.
func GetPerformanceGrade(name string, value float64) Grade {
	v, ok := model.ParseVitalName(name)
	if !ok {
		return GradeUnknown
	}
	t := thresholds[v]
	switch {
	case value <= t.good:
		return GradeGood
	case value <= t.poor:
		return GradeNeedsImprovement
	default:
		return GradePoor
	}
}
