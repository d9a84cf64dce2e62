// Package climit bounds how many goroutines run an operation at once.
package climit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ConcurrencyLimit hands out at most limit Tokens at a time. Acquire a
// Token before the operation and release it afterwards.
type ConcurrencyLimit struct {
	name   string
	labels prometheus.Labels
	slots  chan slot
	log    logrus.FieldLogger
}

type slot struct{}

// New creates a ConcurrencyLimit. The name labels its metrics and log
// lines. A limit below 1 is raised to 1, since 0 would deadlock every
// caller.
func New(name string, limit int, logger logrus.FieldLogger) *ConcurrencyLimit {
	if logger == nil {
		lr := logrus.New()
		lr.SetLevel(logrus.PanicLevel) // never reached
		logger = lr
	}
	logger = logger.WithField("limit_name", name)
	if limit < 1 {
		logger.Warnf("Increasing concurrency limit from configured %d to minimum of 1", limit)
		limit = 1
	}

	cl := &ConcurrencyLimit{
		name:   name,
		labels: prometheus.Labels{"limit_name": name},
		slots:  make(chan slot, limit),
		log:    logger,
	}
	for i := 0; i < limit; i++ {
		cl.slots <- slot{}
	}
	metricLimit.With(cl.labels).Set(float64(limit))
	return cl
}

// Acquire blocks until a Token is free or the context is done. The
// Token must be given back with Release.
func (cl *ConcurrencyLimit) Acquire(ctx context.Context) (*Token, error) {
	metricWaiting.With(cl.labels).Inc()
	t0 := time.Now()

	var s slot
	select {
	case s = <-cl.slots:
	case <-ctx.Done():
		metricWaiting.With(cl.labels).Dec()
		return nil, ctx.Err()
	}
	waited := time.Since(t0)

	metricWaiting.With(cl.labels).Dec()
	metricActive.With(cl.labels).Inc()
	metricAcquiredTotal.With(cl.labels).Inc()
	metricWaitingSeconds.With(cl.labels).Observe(waited.Seconds())

	cl.log.WithField("time_to_acquire", waited).Debug("Acquired token")
	return &Token{
		cl:    cl,
		slot:  s,
		since: time.Now(),
	}, nil
}

// Token is the permission to run one instance of the limited operation.
type Token struct {
	since time.Time

	mu   sync.Mutex
	cl   *ConcurrencyLimit
	slot slot
}

// Release gives the Token back and returns how long it was held. It is
// safe to call more than once, from any goroutine; repeated calls
// return 0.
func (t *Token) Release() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cl == nil {
		return 0
	}
	t.cl.slots <- t.slot
	held := time.Since(t.since)
	metricActive.With(t.cl.labels).Dec()
	metricActiveSeconds.With(t.cl.labels).Observe(held.Seconds())
	t.cl.log.Debug("Released token")
	t.cl = nil
	return held
}
