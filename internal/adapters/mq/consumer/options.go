package consumer

import (
	"github.com/okian/radworker/internal/domain/dedupe"
	"github.com/okian/radworker/pkg/logger"
)

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithName sets the consumer tag and logger name.
func WithName(name string) Option {
	return func(c *Consumer) {
		if name != "" {
			c.name = name
		}
	}
}

// WithPrefetch sets how many unacknowledged messages the broker may push.
func WithPrefetch(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// WithLogger sets a custom logger for the consumer.
func WithLogger(logger logger.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets the sink for delivery outcomes.
func WithRecorder(r Recorder) Option {
	return func(c *Consumer) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithDeduper replaces the in-memory message id tracker.
func WithDeduper(d dedupe.Deduper) Option {
	return func(c *Consumer) {
		if d != nil {
			c.deduper = d
		}
	}
}
