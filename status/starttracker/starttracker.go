package starttracker

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wojas/go-healthz"
	"go.uber.org/atomic"
)

// StartTracker reports the startup phase of a watcher to healthz: the
// first successful storage listing and the first successful trace load.
// Once both have passed, the tracker deregisters itself.
type StartTracker struct {
	Config         StartConfig
	initialListing atomic.Bool
	initialLoad    atomic.Bool
	since          atomic.Time
	prefix         string
	logger         logrus.FieldLogger
}

func New(sc StartConfig, prefix string) *StartTracker {
	st := &StartTracker{
		Config: sc.Validated(),
		prefix: prefix,
		logger: logrus.WithField("starttracker", prefix),
	}

	// Default startup state to false (not finished)
	st.initialListing.Store(false)
	st.initialLoad.Store(false)

	// Set current time as begin of startup phase
	st.since.Store(time.Now())

	st.RegisterTracker()

	return st
}

func (st *StartTracker) RegisterTracker() {
	if st.Config.ReportMetadata {
		healthz.SetMeta("startupCompleted", false)
	}

	trackerName := fmt.Sprintf("%s_startup_in_progress", st.prefix)

	healthz.Register(trackerName, st.Config.EvaluationInterval, func() error {
		failingFor := time.Since(st.since.Load())

		if !st.initialListing.Load() || !st.initialLoad.Load() {
			if st.Config.ReportHealthz {
				if failingFor >= st.Config.ErrorDuration {
					st.logger.Debugf("successful startup pending after %s is violating the error threshold (%s)", failingFor.Round(time.Second), st.Config.ErrorDuration)

					return fmt.Errorf("successful startup pending after %s", failingFor.Round(time.Second))
				} else if failingFor >= st.Config.WarnDuration {
					st.logger.Debugf("successful startup pending after %s is violating the warning threshold (%s)", failingFor.Round(time.Second), st.Config.WarnDuration)

					return healthz.Warnf("successful startup pending after %s", failingFor.Round(time.Second))
				}
			}
			return nil
		}

		if st.Config.ReportMetadata {
			healthz.SetMeta("startupCompleted", true)
		}

		st.logger.Info("startup phase completed successfully")

		// Deregister the tracker - startup phase is irrelevant after passing once
		healthz.Deregister(trackerName)

		return nil
	})

	st.logger.Info("registered tracker for startup phase")
}

func (st *StartTracker) SetPassedInitialListing() {
	st.initialListing.Store(true)

	st.logger.Debug("tracked successful initial listing")
}

func (st *StartTracker) SetPassedInitialLoad() {
	st.initialLoad.Store(true)

	st.logger.Debug("tracked successful initial trace load")
}
