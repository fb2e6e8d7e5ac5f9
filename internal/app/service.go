// Package service runs RAD jobs: it owns the shared worker, dispatches one
// unit per submitted job and drains in-flight units on shutdown.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/radworker/internal/adapters/delivery"
	"github.com/okian/radworker/internal/domain/model"
	"github.com/okian/radworker/pkg/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// Service submits jobs to the worker and tracks the units it started.
type Service struct {
	mu sync.RWMutex

	// Core components
	worker    *Worker
	deliverer Deliverer
	recorder  Recorder

	// Configuration
	settings        Settings
	env             Env
	nextService     string
	maxRetries      int
	deliveryTimeout time.Duration
	shutdownTimeout time.Duration

	// State
	started   bool
	inflight  sync.WaitGroup
	submitted atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSettings sets the process-wide worker settings.
func WithSettings(settings Settings) Option {
	return func(s *Service) {
		s.settings = settings
	}
}

// WithEnv sets the environment passed to every unit.
func WithEnv(env Env) Option {
	return func(s *Service) {
		s.env = env
	}
}

// WithNextService sets the delivery target.
func WithNextService(target string) Option {
	return func(s *Service) {
		if target != "" {
			s.nextService = target
		}
	}
}

// WithMaxRetries sets the delivery attempt ceiling.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithDeliveryTimeout sets the per-attempt HTTP timeout.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.deliveryTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight units.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithDeliverer replaces the HTTP delivery client.
func WithDeliverer(d Deliverer) Option {
	return func(s *Service) {
		if d != nil {
			s.deliverer = d
		}
	}
}

// WithMetrics sets the metrics sink used by the worker.
func WithMetrics(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		maxRetries:      delivery.DefaultMaxRetries,
		deliveryTimeout: delivery.DefaultTimeout,
		shutdownTimeout: defaultShutdownTimeout,
		logger:          nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the worker and its delivery client.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting rad service...")

	if s.deliverer == nil {
		s.deliverer = delivery.New(
			delivery.WithMaxRetries(s.maxRetries),
			delivery.WithTimeout(s.deliveryTimeout),
			delivery.WithLogger(s.logger.Named("delivery")),
		)
	}
	workerOpts := []WorkerOption{WithWorkerLogger(s.logger)}
	if s.recorder != nil {
		workerOpts = append(workerOpts, WithRecorder(s.recorder))
	}
	s.worker = NewWorker(s.settings, s.deliverer, workerOpts...)

	s.started = true
	s.logger.Info(ctx, "rad service started",
		logger.String("strategy", string(s.worker.settings.Strategy)),
		logger.String("nextService", s.nextService),
		logger.Int("maxRetries", s.maxRetries),
		logger.Int("features", len(s.settings.FeatureList)),
	)

	return nil
}

// Submit dispatches job on a new unit and returns its handle. Callers are
// not required to wait on it.
func (s *Service) Submit(ctx context.Context, job model.Job, identity string) (*Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, ErrNotStarted
	}

	s.submitted.Add(1)
	s.active.Add(1)
	s.inflight.Add(1)
	h := s.worker.Dispatch(ctx, job, s.nextService, s.env, identity)
	go func() {
		defer s.inflight.Done()
		err := h.Wait()
		s.active.Add(-1)
		if err != nil {
			s.failed.Add(1)
			return
		}
		s.completed.Add(1)
	}()

	s.logger.Debug(ctx, "job dispatched", logger.String("unit", h.Name))
	return h, nil
}

// Enqueue submits job and returns the unit name. It is the intake-facing
// form of Submit.
func (s *Service) Enqueue(ctx context.Context, job model.Job, identity string) (string, error) {
	h, err := s.Submit(ctx, job, identity)
	if err != nil {
		return "", err
	}
	return h.Name, nil
}

// Stop refuses new jobs and waits for in-flight units, up to the shutdown
// timeout or until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping rad service...", logger.Any("active", s.active.Load()))

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-drained:
		s.logger.Info(ctx, "rad service stopped")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	s.logger.Warn(ctx, "shutdown timed out with units in flight", logger.Any("active", s.active.Load()))
	return fmt.Errorf("drain in-flight units: %d still active", s.active.Load())
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":   s.started,
		"submitted": s.submitted.Load(),
		"active":    s.active.Load(),
		"completed": s.completed.Load(),
		"failed":    s.failed.Load(),
	}
	if s.worker != nil {
		stats["strategy"] = string(s.worker.settings.Strategy)
	}
	return stats
}
