package frame_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/radworker/internal/domain/frame"
	"github.com/okian/radworker/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func batchFrom(raw string) *model.Batch {
	var b model.Batch
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		panic(err)
	}
	return &b
}

func TestNormalize(t *testing.T) {
	Convey("Given an inventory batch", t, func() {
		batch := batchFrom(`{
			"total": 3,
			"results": [
				{"id": "h1", "facts": {"cores": 4, "os": "rhel", "virtual": true}, "packages": ["a", "b"]},
				{"id": "h2", "facts": {"cores": 8, "os": "fedora", "virtual": false}, "packages": []},
				{"fqdn": "h3.example.com", "facts": {"os": "rhel"}}
			]
		}`)

		Convey("When a feature list is configured", func() {
			f, err := frame.Normalize(batch, []string{"facts.cores", "facts.os", "facts.virtual", "packages"})

			Convey("Then columns should follow the list", func() {
				So(err, ShouldBeNil)
				So(f.Columns, ShouldResemble, []string{"facts.cores", "facts.os", "facts.virtual", "packages"})
				So(f.Len(), ShouldEqual, 3)
				So(f.Rows[0], ShouldResemble, []float64{4, 0, 1, 2})
				So(f.Rows[1], ShouldResemble, []float64{8, 1, 0, 0})
				So(f.Rows[2], ShouldResemble, []float64{0, 0, 0, 0})
			})

			Convey("And categorical codes should be recorded", func() {
				So(f.Mapping["facts.os"], ShouldResemble, map[string]float64{"rhel": 0, "fedora": 1})
			})

			Convey("And row ids should come from id or fqdn", func() {
				So(f.IDs, ShouldResemble, []string{"h1", "h2", "h3.example.com"})
			})
		})

		Convey("When no feature list is configured", func() {
			f, err := frame.Normalize(batch, nil)

			Convey("Then every scalar leaf should become a sorted column", func() {
				So(err, ShouldBeNil)
				So(f.Columns, ShouldResemble, []string{"facts.cores", "facts.os", "facts.virtual", "packages"})
			})
		})

		Convey("When a feature points at an object", func() {
			_, err := frame.Normalize(batch, []string{"facts"})

			Convey("Then it should fail with ErrUnsupportedValue", func() {
				So(errors.Is(err, frame.ErrUnsupportedValue), ShouldBeTrue)
			})
		})
	})

	Convey("Given a key that is null in one record and an object in another", t, func() {
		batch := &model.Batch{Results: []model.Record{
			{"id": "h1", "facts": nil, "cpu": 1.0},
			{"id": "h2", "facts": map[string]any{"rhsm": 1.0}, "cpu": 2.0},
			{"id": "h3", "facts": "n/a", "cpu": 3.0},
		}}
		f, err := frame.Normalize(batch, nil)

		Convey("Then only the nested leaf should become a column", func() {
			So(err, ShouldBeNil)
			So(f.Columns, ShouldResemble, []string{"cpu", "facts.rhsm"})
			So(f.Rows, ShouldResemble, [][]float64{{1, 0}, {2, 1}, {3, 0}})
			So(f.IDs, ShouldResemble, []string{"h1", "h2", "h3"})
		})
	})

	Convey("Given a dotted literal key", t, func() {
		batch := batchFrom(`{"total":1,"results":[{"a.b": 5, "a": {"b": 9}}]}`)
		f, err := frame.Normalize(batch, []string{"a.b"})

		Convey("Then the literal key should win", func() {
			So(err, ShouldBeNil)
			So(f.Rows[0], ShouldResemble, []float64{5})
		})
	})

	Convey("Given a nil batch", t, func() {
		_, err := frame.Normalize(nil, nil)

		Convey("Then it should fail with ErrNilBatch", func() {
			So(errors.Is(err, frame.ErrNilBatch), ShouldBeTrue)
		})
	})

	Convey("Given a batch without records", t, func() {
		f, err := frame.Normalize(batchFrom(`{"total":5}`), []string{"x"})

		Convey("Then the frame should be empty but valid", func() {
			So(err, ShouldBeNil)
			So(f.Len(), ShouldEqual, 0)
		})
	})
}
