// Package healthtracker reports recurring failures of an activity to
// healthz.
package healthtracker

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wojas/go-healthz"
	"go.uber.org/atomic"
)

// HealthTracker turns a failure streak into healthz status: a warning
// once the streak passes the warn thresholds, an error once it passes
// the error thresholds. The streak is judged both by its length and by
// how long it has lasted.
type HealthTracker struct {
	Config HealthConfig

	fails        atomic.Uint32
	failingSince atomic.Time
	prefix       string
	activity     string
	log          logrus.FieldLogger
}

// New creates a HealthTracker and registers its healthz checks. The
// prefix names the checks, the activity phrase is inserted into the
// reported messages ("failed to <activity> ...").
func New(hc HealthConfig, prefix string, activity string) *HealthTracker {
	ht := &HealthTracker{
		Config:   hc.Validated(),
		prefix:   prefix,
		activity: activity,
		log:      logrus.WithField("healthtracker", prefix),
	}
	ht.register()
	return ht
}

// register installs the two healthz checks: one on the number of
// consecutive failures, one on how long the streak has lasted.
func (ht *HealthTracker) register() {
	hc := ht.Config

	healthz.Register(ht.prefix+"_failed_attempts", hc.EvaluationInterval, func() error {
		n := ht.fails.Load()
		switch {
		case n >= hc.ErrorSequence:
			return fmt.Errorf("failed to %s %d consecutive times", ht.activity, n)
		case n >= hc.WarnSequence:
			return healthz.Warnf("failed to %s %d consecutive times", ht.activity, n)
		}
		return nil
	})

	healthz.Register(ht.prefix+"_failed_duration", hc.EvaluationInterval, func() error {
		if ht.fails.Load() == 0 {
			return nil
		}
		d := time.Since(ht.failingSince.Load()).Round(time.Second)
		switch {
		case d >= hc.ErrorDuration:
			return fmt.Errorf("failed to %s for %s", ht.activity, d)
		case d >= hc.WarnDuration:
			return healthz.Warnf("failed to %s for %s", ht.activity, d)
		}
		return nil
	})

	ht.log.WithField("activity", ht.activity).Info("Health checks registered")
}

// AddFailure records one more failed attempt. The first failure of a
// streak starts the duration clock.
func (ht *HealthTracker) AddFailure() {
	if ht.fails.Inc() == 1 {
		ht.failingSince.Store(time.Now())
	}
}

// AddSuccess ends the failure streak.
func (ht *HealthTracker) AddSuccess() {
	ht.fails.Store(0)
}
