package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/pulse/pkg/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFileStore(t *testing.T) {
	Convey("Given a file store", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "data", "metrics.json")
		s, err := OpenFileStore(ctx, path, WithMaxRecords(3))
		So(err, ShouldBeNil)

		Convey("When records are stored", func() {
			So(s.Store(ctx, rec("a", "trading", 1)), ShouldBeNil)
			So(s.Store(ctx, rec("b", "trading", 2)), ShouldBeNil)

			Convey("Then the file holds a JSON array of them", func() {
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				var onDisk []model.MetricEvent
				So(json.Unmarshal(data, &onDisk), ShouldBeNil)
				So(onDisk, ShouldHaveLength, 2)
				So(onDisk[1].SessionID, ShouldEqual, "b")
			})

			Convey("And no temp file is left behind", func() {
				entries, err := os.ReadDir(filepath.Dir(path))
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
			})

			Convey("And a reopened store sees them", func() {
				So(s.Close(), ShouldBeNil)
				again, err := OpenFileStore(ctx, path)
				So(err, ShouldBeNil)
				n, _ := again.Count(ctx)
				So(n, ShouldEqual, 2)
			})
		})

		Convey("When the directory disappears", func() {
			So(os.RemoveAll(filepath.Dir(path)), ShouldBeNil)
			err := s.Store(ctx, rec("a", "", 1))

			Convey("Then the write fails and memory is unchanged", func() {
				So(errors.Is(err, ErrStore), ShouldBeTrue)
				n, _ := s.Count(ctx)
				So(n, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a file with more records than the cap", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "metrics.json")
		records := []model.MetricEvent{rec("a", "", 1), rec("b", "", 2), rec("c", "", 3)}
		data, _ := json.Marshal(records)
		So(os.WriteFile(path, data, 0o600), ShouldBeNil)

		s, err := OpenFileStore(ctx, path, WithMaxRecords(2))
		So(err, ShouldBeNil)

		Convey("Then the oldest are dropped on load", func() {
			got, _ := s.GetFiltered(ctx, Filter{})
			So(got, ShouldHaveLength, 2)
			So(got[0].SessionID, ShouldEqual, "b")
		})
	})

	Convey("Given a corrupt file", t, func() {
		path := filepath.Join(t.TempDir(), "metrics.json")
		So(os.WriteFile(path, []byte("{not json"), 0o600), ShouldBeNil)

		_, err := OpenFileStore(context.Background(), path)
		So(errors.Is(err, ErrStore), ShouldBeTrue)
	})
}
