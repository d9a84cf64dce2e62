package utils

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MonitoredMutexDefaultLimit is how long a MonitoredMutex may be held
// before Unlock logs a warning, when no Limit is set.
const MonitoredMutexDefaultLimit = time.Second

// MonitoredMutex is a mutex that warns when it was held for too long.
// Clock jumps and stop-the-world pauses can trip the limit, so a long
// hold is never treated as fatal.
type MonitoredMutex struct {
	mu       sync.Mutex
	lockedAt time.Time

	Name   string
	Logger logrus.FieldLogger
	Limit  time.Duration // 0 means MonitoredMutexDefaultLimit
}

func (m *MonitoredMutex) Lock() {
	m.mu.Lock()
	m.lockedAt = time.Now()
}

func (m *MonitoredMutex) Unlock() {
	held := time.Since(m.lockedAt)
	m.lockedAt = time.Time{}
	m.mu.Unlock()

	limit := m.Limit
	if limit <= 0 {
		limit = MonitoredMutexDefaultLimit
	}
	if held <= limit {
		return
	}

	l := m.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	l.WithFields(logrus.Fields{
		"lock_name": m.Name,
		"held":      held,
		"limit":     limit,
		"caller":    callerRef(1),
	}).Warn("Mutex held longer than limit")
}

// callerRef formats the file, line and function that are skip frames up
// the stack, for log fields.
func callerRef(skip int) string {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	name := ""
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = " (" + fn.Name() + ")"
	}
	return fmt.Sprintf("%s:%d%s", file, line, name)
}
