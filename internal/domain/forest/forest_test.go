package forest_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/okian/radworker/internal/domain/forest"
	. "github.com/smartystreets/goconvey/convey"
)

// cluster returns n points around (0, 0) followed by a single far outlier.
func cluster(n int) [][]float64 {
	rng := rand.New(rand.NewSource(7))
	rows := make([][]float64, 0, n+1)
	for i := 0; i < n; i++ {
		rows = append(rows, []float64{rng.NormFloat64(), rng.NormFloat64()})
	}
	return append(rows, []float64{40, -40})
}

func TestForest(t *testing.T) {
	Convey("Given a dense cluster with one outlier", t, func() {
		rows := cluster(200)
		outlier := len(rows) - 1

		Convey("When fitting a forest", func() {
			f, err := forest.New(rows, 100, 64, forest.WithSeed(1))
			So(err, ShouldBeNil)

			scores, err := f.Score(rows)
			So(err, ShouldBeNil)

			Convey("Then the outlier should score highest", func() {
				So(scores, ShouldHaveLength, len(rows))
				for i, s := range scores {
					So(s, ShouldBeBetweenOrEqual, 0, 1)
					if i != outlier {
						So(scores[outlier], ShouldBeGreaterThan, s)
					}
				}
				So(f.Trees(), ShouldEqual, 100)
				So(f.SampleSize(), ShouldEqual, 64)
			})

			Convey("And Predict should flag it at a high threshold", func() {
				preds, err := f.Predict(rows, 0.7)
				So(err, ShouldBeNil)
				So(preds[outlier].Anomalous, ShouldBeTrue)
				So(preds[outlier].Contrast, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the same seed is used twice", func() {
			a, _ := forest.New(rows, 20, 32, forest.WithSeed(9))
			b, _ := forest.New(rows, 20, 32, forest.WithSeed(9))
			sa, _ := a.Score(rows)
			sb, _ := b.Score(rows)

			Convey("Then scores should be identical", func() {
				So(sa, ShouldResemble, sb)
			})
		})

		Convey("When sample size exceeds the row count", func() {
			f, err := forest.New(rows[:10], 5, 500, forest.WithSeed(1))

			Convey("Then it should be capped", func() {
				So(err, ShouldBeNil)
				So(f.SampleSize(), ShouldEqual, 10)
			})
		})

		Convey("When contrasting with 10% contamination", func() {
			c := forest.NewContrast(100, 64, 0.1, forest.WithSeed(3))
			preds, err := c.FitPredictContrast(rows, rows)

			Convey("Then about a tenth of the rows should be anomalous, the outlier among them", func() {
				So(err, ShouldBeNil)
				So(preds, ShouldHaveLength, len(rows))
				So(preds[outlier].Anomalous, ShouldBeTrue)
				flagged := 0
				for _, p := range preds {
					if p.Anomalous {
						flagged++
						So(p.Contrast, ShouldBeGreaterThan, 0)
					}
				}
				So(flagged, ShouldBeBetweenOrEqual, 1, 21)
				So(c.Forest(), ShouldNotBeNil)
				So(c.Threshold(), ShouldBeGreaterThan, 0)
			})
		})
	})

	Convey("Given invalid input", t, func() {
		rows := cluster(20)

		Convey("Then zero trees or samples should be rejected", func() {
			_, err := forest.New(rows, 0, 10)
			So(errors.Is(err, forest.ErrInvalidParameters), ShouldBeTrue)
			_, err = forest.New(rows, 10, 0)
			So(errors.Is(err, forest.ErrInvalidParameters), ShouldBeTrue)
		})

		Convey("Then an empty frame should be rejected", func() {
			_, err := forest.New(nil, 10, 10)
			So(errors.Is(err, forest.ErrEmptyFrame), ShouldBeTrue)
			_, err = forest.New([][]float64{{}, {}}, 10, 10)
			So(errors.Is(err, forest.ErrEmptyFrame), ShouldBeTrue)
		})

		Convey("Then ragged rows should be rejected", func() {
			_, err := forest.New([][]float64{{1, 2}, {3}}, 10, 10)
			So(errors.Is(err, forest.ErrDimensionMismatch), ShouldBeTrue)
		})

		Convey("Then scoring with other dimensions should be rejected", func() {
			f, err := forest.New(rows, 10, 10, forest.WithSeed(1))
			So(err, ShouldBeNil)
			_, err = f.Score([][]float64{{1, 2, 3}})
			So(errors.Is(err, forest.ErrDimensionMismatch), ShouldBeTrue)
		})

		Convey("Then contamination outside (0, 0.5] should be rejected", func() {
			_, err := forest.NewContrast(10, 10, 0).FitPredictContrast(rows, rows)
			So(errors.Is(err, forest.ErrInvalidParameters), ShouldBeTrue)
			_, err = forest.NewContrast(10, 10, 0.9).FitPredictContrast(rows, rows)
			So(errors.Is(err, forest.ErrInvalidParameters), ShouldBeTrue)
		})
	})
}
