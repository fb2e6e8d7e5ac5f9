// Package forest implements an isolation forest for unsupervised anomaly
// detection over a dense numeric matrix.
//
// Two calling shapes are offered:
//
//	f, err := forest.New(rows, numTrees, sampleSize)   // fit on rows
//	preds, err := f.Predict(rows, minScore)            // flag score >= minScore
//
//	c := forest.NewContrast(numTrees, sampleSize, 0.1) // contamination-based
//	preds, err := c.FitPredictContrast(rows, training) // fit on training, flag the top 10%
//
// Scores follow Liu et al.: s(x) = 2^(-E[h(x)]/c(psi)), in (0, 1], where
// values close to 1 are anomalies.
package forest

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

const eulerGamma = 0.5772156649015329

// Option configures forest construction.
type Option func(*config)

type config struct {
	seed int64
}

// WithSeed fixes the random source so fits are reproducible.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

func newConfig(opts []Option) config {
	c := config{seed: time.Now().UnixNano()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Prediction is the outcome for one row.
type Prediction struct {
	Score     float64
	Anomalous bool
	// Contrast is the distance of Score from the decision threshold.
	// Positive values are anomalous.
	Contrast float64
}

type node struct {
	feature int
	split   float64
	left    *node
	right   *node
	size    int // leaf only
}

func (n *node) leaf() bool { return n.left == nil }

// Forest is a fitted isolation forest. It is immutable after New and safe
// for concurrent scoring.
type Forest struct {
	trees      []*node
	sampleSize int
	dims       int
}

// New fits numTrees isolation trees, each on sampleSize rows drawn without
// replacement. sampleSize is capped at the number of rows.
func New(data [][]float64, numTrees, sampleSize int, opts ...Option) (*Forest, error) {
	if numTrees <= 0 || sampleSize <= 0 {
		return nil, fmt.Errorf("%w: num_trees=%d sample_size=%d", ErrInvalidParameters, numTrees, sampleSize)
	}
	dims, err := validate(data)
	if err != nil {
		return nil, err
	}
	if sampleSize > len(data) {
		sampleSize = len(data)
	}

	cfg := newConfig(opts)
	rng := rand.New(rand.NewSource(cfg.seed)) //nolint:gosec // not used for security
	limit := int(math.Ceil(math.Log2(float64(sampleSize))))

	f := &Forest{trees: make([]*node, numTrees), sampleSize: sampleSize, dims: dims}
	for t := range f.trees {
		perm := rng.Perm(len(data))[:sampleSize]
		sample := make([][]float64, sampleSize)
		for i, idx := range perm {
			sample[i] = data[idx]
		}
		f.trees[t] = grow(rng, sample, dims, 0, limit)
	}
	return f, nil
}

// Score returns the anomaly score of every row.
func (f *Forest) Score(data [][]float64) ([]float64, error) {
	dims, err := validate(data)
	if err != nil {
		return nil, err
	}
	if dims != f.dims {
		return nil, fmt.Errorf("%w: fitted on %d columns, got %d", ErrDimensionMismatch, f.dims, dims)
	}

	norm := averagePath(f.sampleSize)
	if norm == 0 {
		norm = 1
	}
	scores := make([]float64, len(data))
	for i, row := range data {
		var total float64
		for _, tree := range f.trees {
			total += pathLength(tree, row, 0)
		}
		mean := total / float64(len(f.trees))
		scores[i] = math.Pow(2, -mean/norm)
	}
	return scores, nil
}

// Predict scores every row and flags those scoring at least minScore.
func (f *Forest) Predict(data [][]float64, minScore float64) ([]Prediction, error) {
	scores, err := f.Score(data)
	if err != nil {
		return nil, err
	}
	preds := make([]Prediction, len(scores))
	for i, s := range scores {
		preds[i] = Prediction{Score: s, Anomalous: s >= minScore, Contrast: s - minScore}
	}
	return preds, nil
}

// Trees returns the number of fitted trees.
func (f *Forest) Trees() int { return len(f.trees) }

// SampleSize returns the effective per-tree sample size.
func (f *Forest) SampleSize() int { return f.sampleSize }

func grow(rng *rand.Rand, rows [][]float64, dims, depth, limit int) *node {
	if depth >= limit || len(rows) <= 1 {
		return &node{size: len(rows)}
	}

	// Try features in random order until one can split the rows.
	for _, feature := range rng.Perm(dims) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, r := range rows {
			lo = math.Min(lo, r[feature])
			hi = math.Max(hi, r[feature])
		}
		if lo == hi {
			continue
		}
		split := lo + rng.Float64()*(hi-lo)
		var left, right [][]float64
		for _, r := range rows {
			if r[feature] < split {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}
		return &node{
			feature: feature,
			split:   split,
			left:    grow(rng, left, dims, depth+1, limit),
			right:   grow(rng, right, dims, depth+1, limit),
		}
	}
	return &node{size: len(rows)}
}

func pathLength(n *node, row []float64, depth int) float64 {
	for !n.leaf() {
		if row[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePath(n.size)
}

// averagePath is c(n), the average path length of an unsuccessful BST search.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}

func validate(data [][]float64) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyFrame
	}
	dims := len(data[0])
	if dims == 0 {
		return 0, fmt.Errorf("%w: no columns", ErrEmptyFrame)
	}
	for i, row := range data {
		if len(row) != dims {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), dims)
		}
	}
	return dims, nil
}
