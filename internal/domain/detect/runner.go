package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/radworker/internal/domain/frame"
	"github.com/okian/radworker/internal/domain/model"
	"github.com/okian/radworker/pkg/logger"
	"github.com/okian/radworker/pkg/metrics"
)

// Recorder receives the processing time of every detection.
type Recorder interface {
	ObserveProcessingDuration(d time.Duration)
}

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithRecorder sets the processing time sink.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// Runner invokes a Detector and times it. It holds no per-job state and is
// shared by all job units.
type Runner struct {
	recorder Recorder
	logger   logger.Logger
}

// NewRunner creates a runner reporting to the global metrics manager.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		recorder: metrics.Default(),
		logger:   logger.Get().Named("detect"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes d over f. Every error, and any panic raised by the forest, is
// returned wrapped in ErrDetectionFailure; nothing is retried.
func (r *Runner) Run(ctx context.Context, d Detector, f *frame.Frame, params model.Parameters) (m Model, res model.Result, err error) {
	start := time.Now()
	defer func() {
		r.recorder.ObserveProcessingDuration(time.Since(start))
	}()
	defer func() {
		if p := recover(); p != nil {
			m, res = nil, nil
			err = fmt.Errorf("%w: %s: panic: %v", ErrDetectionFailure, d.Strategy(), p)
		}
	}()

	m, res, err = d.Detect(ctx, f, params)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrDetectionFailure, d.Strategy(), err)
	}

	if len(res) == 0 {
		r.logger.Warn(ctx, "detection returned no scores",
			logger.String("strategy", string(d.Strategy())),
			logger.Int("rows", f.Len()),
		)
	} else {
		r.logger.Debug(ctx, "detection done",
			logger.String("strategy", string(d.Strategy())),
			logger.Int("scores", len(res)),
			logger.Int("anomalies", res.Anomalies()),
		)
	}
	return m, res, nil
}
