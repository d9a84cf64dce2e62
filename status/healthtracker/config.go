package healthtracker

import (
	"time"
)

const (
	// MinEvaluationInterval is the minimum interval allowed between healthz evaluation
	MinEvaluationInterval = time.Second

	// MinErrorDuration is the minimum duration before healthz evaluates a tracked item as failing
	MinErrorDuration = 0 * time.Second

	// MinWarnDuration is the minimum duration before healthz evaluates a tracked item as warning
	MinWarnDuration = 0 * time.Second
)

// Defaults applied by Validated when a field is unset.
const (
	DefaultEvaluationInterval = 5 * time.Second
	DefaultErrorDuration      = 5 * time.Minute
	DefaultWarnDuration       = 1 * time.Minute
	DefaultErrorSequence      = 10
	DefaultWarnSequence       = 3
)

type HealthConfig struct {
	EvaluationInterval time.Duration `yaml:"interval"`
	ErrorDuration      time.Duration `yaml:"error_duration"`
	WarnDuration       time.Duration `yaml:"warn_duration"`
	ErrorSequence      uint32        `yaml:"error_sequence"`
	WarnSequence       uint32        `yaml:"warn_sequence"`
}

func (hc HealthConfig) Validated() HealthConfig {
	if hc.EvaluationInterval == 0 {
		hc.EvaluationInterval = DefaultEvaluationInterval
	}
	if hc.ErrorDuration == 0 {
		hc.ErrorDuration = DefaultErrorDuration
	}
	if hc.WarnDuration == 0 {
		hc.WarnDuration = DefaultWarnDuration
	}
	if hc.ErrorSequence == 0 {
		hc.ErrorSequence = DefaultErrorSequence
	}
	if hc.WarnSequence == 0 {
		hc.WarnSequence = DefaultWarnSequence
	}

	// Enforce MinEvaluationInterval
	if hc.EvaluationInterval < MinEvaluationInterval {
		hc.EvaluationInterval = MinEvaluationInterval
	}

	// Enforce MinErrorDuration
	if hc.ErrorDuration < MinErrorDuration {
		hc.ErrorDuration = MinErrorDuration
	}

	// Enforce MinWarnDuration
	if hc.WarnDuration < MinWarnDuration {
		hc.WarnDuration = MinWarnDuration
	}

	return hc
}
