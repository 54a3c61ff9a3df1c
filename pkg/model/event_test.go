package model_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/okian/pulse/pkg/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseVitalName(t *testing.T) {
	convey.Convey("Given reported vital names", t, func() {
		convey.Convey("When the name is known", func() {
			for _, name := range []string{"LCP", "fid", " cls ", "Ttfb", "FCP", "INP"} {
				v, ok := model.ParseVitalName(name)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(v, convey.ShouldNotBeEmpty)
			}
		})

		convey.Convey("When the name is unknown", func() {
			_, ok := model.ParseVitalName("TBT")
			convey.So(ok, convey.ShouldBeFalse)
		})
	})
}

func TestMetricEventVitals(t *testing.T) {
	convey.Convey("Given an empty metric event", t, func() {
		e := model.MetricEvent{}

		convey.Convey("Then no vital is present", func() {
			convey.So(e.HasAnyVital(), convey.ShouldBeFalse)
			_, ok := e.Vital(model.VitalLCP)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("When vitals are set independently", func() {
			convey.So(e.SetVital(model.VitalLCP, 2100), convey.ShouldBeTrue)
			convey.So(e.SetVital(model.VitalCLS, 0.05), convey.ShouldBeTrue)

			convey.Convey("Then both accumulate on the same event", func() {
				lcp, ok := e.Vital(model.VitalLCP)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(lcp, convey.ShouldEqual, 2100)
				cls, ok := e.Vital(model.VitalCLS)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(cls, convey.ShouldEqual, 0.05)
				convey.So(e.HasAnyVital(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a vital is NaN", func() {
			e.SetVital(model.VitalFID, math.NaN())

			convey.Convey("Then it is treated as absent", func() {
				_, ok := e.Vital(model.VitalFID)
				convey.So(ok, convey.ShouldBeFalse)
				convey.So(e.HasAnyVital(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the vital is unknown", func() {
			convey.So(e.SetVital(model.VitalName("TBT"), 1), convey.ShouldBeFalse)
		})
	})
}

func TestMetricEventClone(t *testing.T) {
	convey.Convey("Given a populated metric event", t, func() {
		e := model.MetricEvent{
			SessionID:     "s1",
			CustomMetrics: map[string]float64{"render": 12},
			Errors:        []model.ErrorRecord{{Message: "boom"}},
		}
		e.SetVital(model.VitalLCP, 1800)

		convey.Convey("When the clone is mutated", func() {
			c := e.Clone()
			*c.LCP = 9999
			c.CustomMetrics["render"] = 99
			c.CustomMetrics["extra"] = 1
			c.Errors[0].Message = "changed"
			c.Errors = append(c.Errors, model.ErrorRecord{Message: "more"})

			convey.Convey("Then the original is untouched", func() {
				convey.So(*e.LCP, convey.ShouldEqual, 1800)
				convey.So(e.CustomMetrics, convey.ShouldResemble, map[string]float64{"render": 12})
				convey.So(len(e.Errors), convey.ShouldEqual, 1)
				convey.So(e.Errors[0].Message, convey.ShouldEqual, "boom")
			})
		})

		convey.Convey("When cloning an event with nil collections", func() {
			c := (&model.MetricEvent{}).Clone()

			convey.Convey("Then the clone has empty, non-nil collections", func() {
				convey.So(c.CustomMetrics, convey.ShouldNotBeNil)
				convey.So(c.Errors, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMetricEventJSON(t *testing.T) {
	convey.Convey("Given an event holding non-finite values", t, func() {
		e := model.MetricEvent{
			SessionID:        "s1",
			CustomMetrics:    map[string]float64{"render": 12, "bad": math.Inf(1)},
			DOMContentLoaded: math.NaN(),
		}
		e.SetVital(model.VitalLCP, 2000)
		e.SetVital(model.VitalCLS, math.NaN())
		e.SetVital(model.VitalINP, math.Inf(-1))

		convey.Convey("When it is encoded", func() {
			body, err := json.Marshal(e)
			convey.So(err, convey.ShouldBeNil)

			var got model.MetricEvent
			convey.So(json.Unmarshal(body, &got), convey.ShouldBeNil)

			convey.Convey("Then only the finite values are carried", func() {
				convey.So(*got.LCP, convey.ShouldEqual, 2000)
				convey.So(got.CLS, convey.ShouldBeNil)
				convey.So(got.INP, convey.ShouldBeNil)
				convey.So(got.CustomMetrics, convey.ShouldResemble, map[string]float64{"render": 12})
				convey.So(got.DOMContentLoaded, convey.ShouldEqual, 0)
			})

			convey.Convey("Then the source event is unchanged", func() {
				convey.So(math.IsNaN(*e.CLS), convey.ShouldBeTrue)
				convey.So(e.CustomMetrics, convey.ShouldContainKey, "bad")
			})
		})

		convey.Convey("Then an infinite vital counts as absent", func() {
			_, ok := e.Vital(model.VitalINP)
			convey.So(ok, convey.ShouldBeFalse)
		})
	})
}

func TestNavigationTiming(t *testing.T) {
	convey.Convey("Given a navigation timing entry", t, func() {
		n := model.NavigationTiming{
			DOMContentLoadedEventStart: 100,
			DOMContentLoadedEventEnd:   140,
			LoadEventStart:             300,
			LoadEventEnd:               325,
		}

		convey.Convey("Then derived timings are handler durations", func() {
			convey.So(n.DOMContentLoaded(), convey.ShouldEqual, 40)
			convey.So(n.LoadComplete(), convey.ShouldEqual, 25)
		})
	})
}
