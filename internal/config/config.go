// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and RAD_* environment variables over New().
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"time"
)

// Config contains process configuration. It is read once at startup and never
// mutated afterwards.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text, json or console.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP intake listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// NextService is the URL scored results are POSTed to.
	NextService string `koanf:"next_service"`

	// AIService is copied to the envelope's ai_service field.
	AIService string `koanf:"ai_service"`

	// FeatureList names the record fields used for detection. Empty means
	// every scalar field.
	FeatureList []string `koanf:"feature_list"`

	// Strategy selects the detection variant: scikitlearn or original.
	Strategy string `koanf:"strategy"`

	// MaxRetries is the delivery attempt ceiling.
	MaxRetries int `koanf:"max_retries"`

	// TreesFactor and SampleFactor scale the row count into model parameters.
	TreesFactor  float64 `koanf:"trees_factor"`
	SampleFactor float64 `koanf:"sample_factor"`

	// MinScore is the anomaly threshold of the original strategy.
	MinScore float64 `koanf:"min_score"`

	// Contamination is the flagged share of the scikitlearn strategy.
	Contamination float64 `koanf:"contamination"`

	// DeliveryTimeoutMS bounds a single delivery attempt.
	DeliveryTimeoutMS int `koanf:"delivery_timeout_ms"`

	// ShutdownTimeoutMS bounds the drain of in-flight units.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`

	// AMQPURL enables the AMQP intake when set.
	AMQPURL string `koanf:"amqp_url"`

	// AMQPQueue is the queue consumed for jobs.
	AMQPQueue string `koanf:"amqp_queue"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		NextService:       "http://localhost:8080/api/v1/results",
		AIService:         "rad",
		FeatureList:       []string{},
		Strategy:          "scikitlearn",
		MaxRetries:        3,
		TreesFactor:       0.2,
		SampleFactor:      0.2,
		MinScore:          0.6,
		Contamination:     0.1,
		DeliveryTimeoutMS: 30_000,
		ShutdownTimeoutMS: 30_000,
		AMQPQueue:         "rad.jobs",
	}
}

// DeliveryTimeout returns DeliveryTimeoutMS as a duration.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}
