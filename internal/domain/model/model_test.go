package model_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/radworker/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestJobDecoding(t *testing.T) {
	Convey("Given raw job payloads", t, func() {
		Convey("When total is present", func() {
			var job model.Job
			err := json.Unmarshal([]byte(`{"account":"A1","data":{"total":2,"results":[{"id":"h1"},{"id":"h2"}]}}`), &job)

			Convey("Then every field should decode", func() {
				So(err, ShouldBeNil)
				So(job.Account, ShouldEqual, "A1")
				So(job.Data, ShouldNotBeNil)
				So(job.Data.Total, ShouldNotBeNil)
				So(*job.Data.Total, ShouldEqual, 2)
				So(job.Data.Results, ShouldHaveLength, 2)
			})
		})

		Convey("When total is missing", func() {
			var job model.Job
			err := json.Unmarshal([]byte(`{"account":"A1","data":{"results":[]}}`), &job)

			Convey("Then Total should stay nil", func() {
				So(err, ShouldBeNil)
				So(job.Data.Total, ShouldBeNil)
			})
		})

		Convey("When data is missing", func() {
			var job model.Job
			err := json.Unmarshal([]byte(`{"account":"A1"}`), &job)

			Convey("Then Data should stay nil", func() {
				So(err, ShouldBeNil)
				So(job.Data, ShouldBeNil)
			})
		})
	})
}

func TestEnvelope(t *testing.T) {
	Convey("Given an envelope built without results or features", t, func() {
		env := model.NewEnvelope("batch-1", "rad", "A1", nil, nil)
		raw, err := json.Marshal(env)
		So(err, ShouldBeNil)

		var decoded map[string]any
		So(json.Unmarshal(raw, &decoded), ShouldBeNil)
		data := decoded["data"].(map[string]any)

		Convey("Then arrays should never serialize as null", func() {
			So(decoded["id"], ShouldEqual, "batch-1")
			So(decoded["ai_service"], ShouldEqual, "rad")
			So(data["account_number"], ShouldEqual, "A1")
			So(data["results"], ShouldResemble, []any{})
			So(data["feature_list"], ShouldResemble, []any{})
			So(data["common_data"], ShouldResemble, map[string]any{"charts": []any{}})
		})
	})

	Convey("Given a result with anomalies", t, func() {
		result := model.Result{
			{Index: 0, Score: 0.4},
			{Index: 1, Score: 0.8, Anomalous: true},
			{Index: 2, Score: 0.7, Anomalous: true},
		}

		Convey("Then Anomalies should count flagged rows", func() {
			So(result.Anomalies(), ShouldEqual, 2)
		})
	})
}
