// Package detect runs isolation forest anomaly detection over a normalized
// frame using one of two interchangeable strategies.
package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/radworker/internal/domain/forest"
	"github.com/okian/radworker/internal/domain/frame"
	"github.com/okian/radworker/internal/domain/model"
)

// Strategy names a detection variant.
type Strategy string

// Known strategies.
const (
	// StrategyScikitLearn fits with a fixed contamination rate and predicts
	// by contrast against the training frame.
	StrategyScikitLearn Strategy = "scikitlearn"
	// StrategyOriginal fits on the frame and flags scores above min_score.
	StrategyOriginal Strategy = "original"
)

// DefaultContamination is the share of rows the scikitlearn strategy flags.
const DefaultContamination = 0.1

// ParseStrategy maps a configuration value to a Strategy. Empty selects the
// default.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyScikitLearn:
		return StrategyScikitLearn, nil
	case StrategyOriginal:
		return StrategyOriginal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Model is the fitted forest returned with a result.
type Model interface {
	Trees() int
	SampleSize() int
}

// Detector is the capability shared by every strategy.
type Detector interface {
	Strategy() Strategy
	Detect(ctx context.Context, f *frame.Frame, params model.Parameters) (Model, model.Result, error)
}

// NewDetector builds the variant for strategy. minScore only applies to
// StrategyOriginal and contamination only to StrategyScikitLearn.
func NewDetector(strategy Strategy, minScore, contamination float64, opts ...forest.Option) (Detector, error) {
	switch strategy {
	case StrategyScikitLearn:
		if contamination == 0 {
			contamination = DefaultContamination
		}
		return &ContrastDetector{Contamination: contamination, Options: opts}, nil
	case StrategyOriginal:
		return &ThresholdDetector{MinScore: minScore, Options: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// ContrastDetector is the scikitlearn strategy.
type ContrastDetector struct {
	Contamination float64
	Options       []forest.Option
}

// Strategy implements Detector.
func (d *ContrastDetector) Strategy() Strategy { return StrategyScikitLearn }

// Detect fits on the frame and predicts the same frame by contrast.
func (d *ContrastDetector) Detect(_ context.Context, f *frame.Frame, params model.Parameters) (Model, model.Result, error) {
	c := forest.NewContrast(params.NumTrees, params.SampleSize, d.Contamination, d.Options...)
	preds, err := c.FitPredictContrast(f.Rows, f.Rows)
	if err != nil {
		return nil, nil, err
	}
	return c.Forest(), toResult(f, preds), nil
}

// ThresholdDetector is the original strategy.
type ThresholdDetector struct {
	MinScore float64
	Options  []forest.Option
}

// Strategy implements Detector.
func (d *ThresholdDetector) Strategy() Strategy { return StrategyOriginal }

// Detect fits on the frame and flags rows scoring at least MinScore.
func (d *ThresholdDetector) Detect(_ context.Context, f *frame.Frame, params model.Parameters) (Model, model.Result, error) {
	fst, err := forest.New(f.Rows, params.NumTrees, params.SampleSize, d.Options...)
	if err != nil {
		return nil, nil, err
	}
	preds, err := fst.Predict(f.Rows, d.MinScore)
	if err != nil {
		return nil, nil, err
	}
	return fst, toResult(f, preds), nil
}

func toResult(f *frame.Frame, preds []forest.Prediction) model.Result {
	res := make(model.Result, len(preds))
	for i, p := range preds {
		s := model.Score{Index: i, Score: p.Score, Anomalous: p.Anomalous, Contrast: p.Contrast}
		if i < len(f.IDs) {
			s.ID = f.IDs[i]
		}
		res[i] = s
	}
	return res
}
