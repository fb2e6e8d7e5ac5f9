package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/okian/radworker/internal/domain/detect"
)

const (
	envPrefix      = "RAD_"
	envConfig      = "RAD_CONFIG"
	envFeatureList = "FEATURE_LIST"
	featureKey     = "feature_list"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if RAD_CONFIG is set
//  3. unprefixed FEATURE_LIST env var
//  4. env (prefix RAD_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Deployments that predate the RAD_ prefix export FEATURE_LIST.
	legacyProvider := env.ProviderWithValue(envFeatureList, ".", func(key, value string) (string, interface{}) {
		if key != envFeatureList {
			return "", nil
		}
		return featureKey, parseFeatureList(value)
	})
	if err := k.Load(legacyProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	// Map env keys like RAD_MAX_RETRIES -> max_retries (flat keys).
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == featureKey {
			return key, parseFeatureList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseFeatureList accepts a JSON array or a comma separated list.
func parseFeatureList(value string) []string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "[") {
		var list []string
		if err := json.Unmarshal([]byte(value), &list); err == nil {
			return list
		}
		value = strings.Trim(value, "[]")
	}
	out := []string{}
	for _, f := range strings.Split(value, ",") {
		f = strings.Trim(strings.TrimSpace(f), `"'`)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func validate(cfg *Config) error {
	if cfg.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if cfg.NextService == "" {
		return fmt.Errorf("%w: next_service must not be empty", ErrInvalidConfig)
	}
	strategy, err := detect.ParseStrategy(cfg.Strategy)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.Strategy = string(strategy)
	if cfg.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1, got %d", ErrInvalidConfig, cfg.MaxRetries)
	}
	if cfg.Contamination <= 0 || cfg.Contamination > 0.5 {
		return fmt.Errorf("%w: contamination must be in (0, 0.5], got %g", ErrInvalidConfig, cfg.Contamination)
	}
	return nil
}
