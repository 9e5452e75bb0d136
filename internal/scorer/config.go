// Package scorer turns current submissions into KPI, pillar, and final ESG
// scores for one organization and reporting period.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-scorecard/internal/config"
	"github.com/sells-group/esg-scorecard/internal/normalize"
	"github.com/sells-group/esg-scorecard/internal/resilience"
)

// Config tunes a Scorer.
type Config struct {
	// InverseThreshold is the raw value at which an inverse KPI scores 0.
	InverseThreshold float64 `json:"inverse_threshold"`
	// DefaultKPIWeight is used for a mapped KPI with no weight in the run
	// period. On the 0-100 scale.
	DefaultKPIWeight float64 `json:"default_kpi_weight"`
	// PillarWeightFallback allows the most recent prior period's pillar
	// weights when the run period has none.
	PillarWeightFallback bool `json:"pillar_weight_fallback"`
	// Concurrency bounds the goroutines normalizing KPIs in one run.
	Concurrency int `json:"-"`
	// Retry governs the score write.
	Retry resilience.RetryConfig `json:"-"`
}

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{
		InverseThreshold:     normalize.DefaultInverseThreshold,
		DefaultKPIWeight:     0,
		PillarWeightFallback: true,
		Concurrency:          4,
		Retry:                resilience.DefaultRetryConfig(),
	}
}

// ConfigFrom builds a Config from application settings.
func ConfigFrom(sc config.ScoringConfig, rc config.RetryConfig) Config {
	c := DefaultConfig()
	if sc.InverseThreshold > 0 {
		c.InverseThreshold = sc.InverseThreshold
	}
	c.DefaultKPIWeight = sc.DefaultKPIWeight
	c.PillarWeightFallback = sc.PillarWeightFallback
	if sc.KPIConcurrency > 0 {
		c.Concurrency = sc.KPIConcurrency
	}
	if rc.MaxAttempts > 0 {
		c.Retry.MaxAttempts = rc.MaxAttempts
	}
	if d := rc.InitialBackoff(); d > 0 {
		c.Retry.InitialBackoff = d
	}
	if d := rc.MaxBackoff(); d > 0 {
		c.Retry.MaxBackoff = d
	}
	return c
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	if c.InverseThreshold <= 0 || math.IsInf(c.InverseThreshold, 0) || math.IsNaN(c.InverseThreshold) {
		errs = append(errs, "inverse_threshold must be a positive number")
	}
	if c.DefaultKPIWeight < 0 || c.DefaultKPIWeight > 100 {
		errs = append(errs, fmt.Sprintf("default_kpi_weight must be between 0 and 100, got %.1f", c.DefaultKPIWeight))
	}
	if c.Concurrency < 1 {
		errs = append(errs, "concurrency must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
