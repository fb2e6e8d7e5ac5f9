package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/radworker/internal/adapters/delivery"
	"github.com/okian/radworker/internal/domain/detect"
	"github.com/okian/radworker/internal/domain/forest"
	"github.com/okian/radworker/internal/domain/frame"
	"github.com/okian/radworker/internal/domain/model"
	"github.com/okian/radworker/internal/domain/tuning"
	"github.com/okian/radworker/pkg/logger"
	"github.com/okian/radworker/pkg/metrics"
)

// Env is the per-invocation environment of a job unit.
type Env struct {
	TreesFactor  float64
	SampleFactor float64
	MinScore     float64
	AIService    string
}

// Settings is the process-wide configuration shared by every unit.
type Settings struct {
	FeatureList   []string
	Strategy      detect.Strategy
	Contamination float64
}

// Deliverer sends the envelope downstream.
type Deliverer interface {
	Attempt(ctx context.Context, method, target string, payload any, headers map[string]string) (*delivery.Response, error)
}

// Recorder is the metrics sink of a unit.
type Recorder interface {
	ObserveRequestDuration(d time.Duration)
	ObservePreparationDuration(d time.Duration)
	ObserveDataSize(rows int)
	IncJobsPublished()
	IncJobFailed(reason string)
	IncDeliveryExhausted()
	UnitStarted()
	UnitFinished()
}

// WorkerOption applies a configuration option to the Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the parent logger units are named under.
func WithWorkerLogger(l logger.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) WorkerOption {
	return func(w *Worker) {
		if r != nil {
			w.recorder = r
		}
	}
}

// WithRunner sets the detection runner.
func WithRunner(r *detect.Runner) WorkerOption {
	return func(w *Worker) {
		if r != nil {
			w.runner = r
		}
	}
}

// WithIDGenerator replaces the batch id source.
func WithIDGenerator(fn func() string) WorkerOption {
	return func(w *Worker) {
		if fn != nil {
			w.newID = fn
		}
	}
}

// WithForestOptions passes options to every forest a unit fits.
func WithForestOptions(opts ...forest.Option) WorkerOption {
	return func(w *Worker) {
		w.forestOpts = append(w.forestOpts, opts...)
	}
}

// Worker executes jobs. One Worker is shared by all units; it holds no
// per-job state.
type Worker struct {
	settings   Settings
	deliverer  Deliverer
	runner     *detect.Runner
	recorder   Recorder
	logger     logger.Logger
	newID      func() string
	forestOpts []forest.Option
	seq        atomic.Uint64
}

// NewWorker creates a worker. settings is copied.
func NewWorker(settings Settings, deliverer Deliverer, opts ...WorkerOption) *Worker {
	settings.FeatureList = append([]string(nil), settings.FeatureList...)
	if settings.Strategy == "" {
		settings.Strategy = detect.StrategyScikitLearn
	}

	w := &Worker{
		settings:  settings,
		deliverer: deliverer,
		recorder:  metrics.Default(),
		logger:    logger.Get().Named("worker"),
		newID:     newBatchID,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.runner == nil {
		runnerOpts := []detect.Option{detect.WithLogger(w.logger.Named("detect"))}
		if rec, ok := w.recorder.(detect.Recorder); ok {
			runnerOpts = append(runnerOpts, detect.WithRecorder(rec))
		}
		w.runner = detect.NewRunner(runnerOpts...)
	}
	return w
}

// Handle observes a dispatched unit.
type Handle struct {
	Name string
	done chan struct{}
	err  error
}

// Done is closed when the unit finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the unit finishes and returns its fatal error, if any.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Dispatch runs the job on its own goroutine and returns immediately. The
// unit is detached from ctx cancellation.
func (w *Worker) Dispatch(ctx context.Context, job model.Job, nextService string, env Env, identity string) *Handle {
	h := &Handle{Name: w.nextName(), done: make(chan struct{})}
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(h.done)
		defer func() {
			if p := recover(); p != nil {
				h.err = fmt.Errorf("unit %s panicked: %v", h.Name, p)
				w.logger.Named(h.Name).Error(ctx, "unit panicked", logger.Any("panic", p))
			}
		}()
		h.err = w.run(ctx, w.logger.Named(h.Name), job, nextService, env, identity)
	}()
	return h
}

// Process runs the job synchronously. Malformed and empty jobs end the unit
// without error; preparation and detection failures are returned.
func (w *Worker) Process(ctx context.Context, job model.Job, nextService string, env Env, identity string) error {
	return w.run(ctx, w.logger.Named(w.nextName()), job, nextService, env, identity)
}

func (w *Worker) nextName() string {
	return "unit-" + strconv.FormatUint(w.seq.Add(1), 10)
}

func (w *Worker) run(ctx context.Context, log logger.Logger, job model.Job, nextService string, env Env, identity string) error {
	start := time.Now()
	w.recorder.UnitStarted()
	defer func() {
		w.recorder.UnitFinished()
		w.recorder.ObserveRequestDuration(time.Since(start))
	}()
	log.Debug(ctx, "worker started")

	total, err := validate(job)
	if err != nil {
		log.Error(ctx, "invalid job, aborting", logger.Error(err))
		return nil
	}
	w.recorder.ObserveDataSize(total)
	if total == 0 {
		w.recorder.IncJobFailed(metrics.ReasonEmpty)
		log.Info(ctx, "no data to process, aborting",
			logger.String("account", job.Account),
			logger.Error(ErrEmptyJob),
		)
		return nil
	}

	batchID := w.newID()
	log.Info(ctx, "started",
		logger.String("account", job.Account),
		logger.String("batch_id", batchID),
	)

	prepStart := time.Now()
	f, err := frame.Normalize(job.Data, w.settings.FeatureList)
	w.recorder.ObservePreparationDuration(time.Since(prepStart))
	if err != nil {
		w.recorder.IncJobFailed(metrics.ReasonPreparation)
		log.Error(ctx, "data preparation failed", logger.String("batch_id", batchID), logger.Error(err))
		return fmt.Errorf("%w: batch %s: %w", ErrPreparationFailed, batchID, err)
	}

	params := tuning.Tune(env.TreesFactor, env.SampleFactor, total)
	log.Debug(ctx, "model parameters",
		logger.Int("num_trees", params.NumTrees),
		logger.Int("sample_size", params.SampleSize),
	)

	var res model.Result
	detector, err := detect.NewDetector(w.settings.Strategy, env.MinScore, w.settings.Contamination, w.forestOpts...)
	if err != nil {
		err = fmt.Errorf("%w: %w", detect.ErrDetectionFailure, err)
	} else {
		_, res, err = w.runner.Run(ctx, detector, f, params)
	}
	if err != nil {
		w.recorder.IncJobFailed(metrics.ReasonDetection)
		log.Error(ctx, "detection failed", logger.String("batch_id", batchID), logger.Error(err))
		return err
	}

	return w.publish(ctx, log, job, batchID, res, nextService, env, identity)
}

func (w *Worker) publish(ctx context.Context, log logger.Logger, job model.Job, batchID string, res model.Result, nextService string, env Env, identity string) error {
	envelope := model.NewEnvelope(batchID, env.AIService, job.Account, res, w.settings.FeatureList)
	log.Info(ctx, "detection done, publishing to",
		logger.String("next_service", nextService),
		logger.Int("results", len(res)),
		logger.Int("anomalies", res.Anomalies()),
	)

	headers := map[string]string{model.IdentityHeader: identity}
	if _, err := w.deliverer.Attempt(ctx, http.MethodPost, nextService, envelope, headers); err != nil {
		if errors.Is(err, delivery.ErrDeliveryExhausted) {
			w.recorder.IncDeliveryExhausted()
		}
		log.Error(ctx, "failed to publish results",
			logger.String("batch_id", batchID),
			logger.String("next_service", nextService),
			logger.Error(err),
		)
	}
	w.recorder.IncJobsPublished()
	log.Debug(ctx, "done, exiting")
	return nil
}

func validate(job model.Job) (int, error) {
	switch {
	case job.Account == "":
		return 0, fmt.Errorf("%w: missing account", ErrMalformedJob)
	case job.Data == nil:
		return 0, fmt.Errorf("%w: missing data", ErrMalformedJob)
	case job.Data.Total == nil:
		return 0, fmt.Errorf("%w: missing data.total", ErrMalformedJob)
	case *job.Data.Total < 0:
		return 0, fmt.Errorf("%w: negative data.total %d", ErrMalformedJob, *job.Data.Total)
	}
	return *job.Data.Total, nil
}

func newBatchID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
