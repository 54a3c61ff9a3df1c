package aggregate_test

import (
	"math"
	"testing"

	"github.com/okian/pulse/pkg/aggregate"
	"github.com/okian/pulse/pkg/model"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr(v float64) *float64 { return &v }

func TestAggregate(t *testing.T) {
	Convey("Given records with partial vitals", t, func() {
		records := []model.MetricEvent{
			{SessionID: "a", AppName: "trading", LCP: ptr(2000)},
			{SessionID: "b", AppName: "trading", LCP: ptr(5000)},
			{SessionID: "c", FID: ptr(50), Errors: []model.ErrorRecord{{Message: "x"}, {Message: "y"}}},
		}

		Convey("When they are aggregated", func() {
			s := aggregate.Aggregate(records)

			Convey("Then each average uses only its defined values", func() {
				So(s.AvgLCP, ShouldEqual, 3500)
				So(s.AvgFID, ShouldEqual, 50)
			})

			Convey("And vitals without values average to 0", func() {
				So(s.AvgCLS, ShouldEqual, 0)
				So(math.IsNaN(s.AvgINP), ShouldBeFalse)
				_, ok := s.Average(model.VitalCLS)
				So(ok, ShouldBeFalse)
			})

			Convey("And the counts cover every record", func() {
				So(s.TotalErrors, ShouldEqual, 2)
				So(s.TotalSessions, ShouldEqual, 3)
				So(s.TotalRecords, ShouldEqual, 3)
				So(s.DuplicateRows, ShouldEqual, 0)
				So(s.AppBreakdown, ShouldResemble, map[string]int{"trading": 2, aggregate.UnknownApp: 1})
			})

			Convey("And only sampled averages are graded", func() {
				So(s.Grades(), ShouldResemble, map[model.VitalName]aggregate.Grade{
					model.VitalLCP: aggregate.GradeNeedsImprovement,
					model.VitalFID: aggregate.GradeGood,
				})
			})
		})
	})

	Convey("Given records without vitals", t, func() {
		records := []model.MetricEvent{
			{SessionID: "a", Errors: []model.ErrorRecord{{Message: "x"}}},
			{SessionID: "b", LCP: ptr(math.NaN()), TTFB: ptr(300)},
		}
		s := aggregate.Aggregate(records)

		Convey("Then NaN values and vital-less records are excluded from averages", func() {
			So(s.AvgLCP, ShouldEqual, 0)
			So(s.AvgTTFB, ShouldEqual, 300)
			So(s.VitalSamples[model.VitalTTFB], ShouldEqual, 1)
			So(s.TotalErrors, ShouldEqual, 1)
		})
	})

	Convey("Given no records", t, func() {
		s := aggregate.Aggregate(nil)
		So(s.TotalRecords, ShouldEqual, 0)
		So(s.AvgLCP, ShouldEqual, 0)
		So(s.AppBreakdown, ShouldBeEmpty)
	})
}

func TestDuplicateSnapshots(t *testing.T) {
	Convey("Given two snapshots of the same session", t, func() {
		records := []model.MetricEvent{
			{SessionID: "s1", LCP: ptr(1000), Errors: []model.ErrorRecord{{Message: "boom"}}},
			{SessionID: "s2", LCP: ptr(3000)},
			{SessionID: "s1", LCP: ptr(1200), Errors: []model.ErrorRecord{{Message: "boom"}}},
		}

		Convey("When aggregated as stored", func() {
			s := aggregate.Aggregate(records)

			Convey("Then the duplication is visible in the counts", func() {
				So(s.TotalSessions, ShouldEqual, 2)
				So(s.TotalRecords, ShouldEqual, 3)
				So(s.DuplicateRows, ShouldEqual, 1)
				So(s.TotalErrors, ShouldEqual, 2)
			})
		})

		Convey("When reduced to the latest row per session first", func() {
			latest := aggregate.LatestPerSession(records)

			Convey("Then the last snapshot of each session is kept in order", func() {
				So(latest, ShouldHaveLength, 2)
				So(latest[0].SessionID, ShouldEqual, "s2")
				So(*latest[1].LCP, ShouldEqual, 1200)

				s := aggregate.Aggregate(latest)
				So(s.TotalErrors, ShouldEqual, 1)
				So(s.DuplicateRows, ShouldEqual, 0)
				So(s.AvgLCP, ShouldEqual, 2100)
			})
		})
	})
}

func TestGetPerformanceGrade(t *testing.T) {
	Convey("Given the vital thresholds", t, func() {
		cases := []struct {
			name  string
			value float64
			want  aggregate.Grade
		}{
			{"LCP", 2000, aggregate.GradeGood},
			{"LCP", 2500, aggregate.GradeGood},
			{"LCP", 4000, aggregate.GradeNeedsImprovement},
			{"LCP", 4500, aggregate.GradePoor},
			{"CLS", 0.15, aggregate.GradeNeedsImprovement},
			{"CLS", 0.3, aggregate.GradePoor},
			{"FID", 100, aggregate.GradeGood},
			{"INP", 250, aggregate.GradeNeedsImprovement},
			{"FCP", 3001, aggregate.GradePoor},
			{"TTFB", 900, aggregate.GradeNeedsImprovement},
			{"lcp", 100, aggregate.GradeGood},
			{"XYZ", 1, aggregate.GradeUnknown},
		}
		for _, tc := range cases {
			So(aggregate.GetPerformanceGrade(tc.name, tc.value), ShouldEqual, tc.want)
		}
	})
}
