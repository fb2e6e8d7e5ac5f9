package forest

import (
	"fmt"
	"math"
	"sort"
)

// ContrastForest fits on a training frame and flags the given contamination
// share of it as anomalous; the resulting threshold is then applied to the
// scored frame.
type ContrastForest struct {
	numTrees      int
	sampleSize    int
	contamination float64
	opts          []Option

	forest    *Forest
	threshold float64
}

// NewContrast prepares an unfitted contrast forest.
func NewContrast(numTrees, sampleSize int, contamination float64, opts ...Option) *ContrastForest {
	return &ContrastForest{
		numTrees:      numTrees,
		sampleSize:    sampleSize,
		contamination: contamination,
		opts:          opts,
	}
}

// FitPredictContrast fits on training and predicts data against the
// contamination threshold derived from the training scores.
func (c *ContrastForest) FitPredictContrast(data, training [][]float64) ([]Prediction, error) {
	if !(c.contamination > 0 && c.contamination <= 0.5) {
		return nil, fmt.Errorf("%w: contamination=%v must be in (0, 0.5]", ErrInvalidParameters, c.contamination)
	}

	f, err := New(training, c.numTrees, c.sampleSize, c.opts...)
	if err != nil {
		return nil, err
	}
	trainScores, err := f.Score(training)
	if err != nil {
		return nil, err
	}
	c.forest = f
	c.threshold = quantile(trainScores, 1-c.contamination)

	scores := trainScores
	if !sameFrame(data, training) {
		if scores, err = f.Score(data); err != nil {
			return nil, err
		}
	}

	preds := make([]Prediction, len(scores))
	for i, s := range scores {
		preds[i] = Prediction{Score: s, Anomalous: s > c.threshold, Contrast: s - c.threshold}
	}
	return preds, nil
}

// Threshold returns the fitted decision threshold.
func (c *ContrastForest) Threshold() float64 { return c.threshold }

// Forest returns the fitted forest, or nil before FitPredictContrast.
func (c *ContrastForest) Forest() *Forest { return c.forest }

// quantile returns the q-quantile of values using linear interpolation.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func sameFrame(a, b [][]float64) bool {
	return len(a) == len(b) && len(a) > 0 && &a[0] == &b[0]
}
