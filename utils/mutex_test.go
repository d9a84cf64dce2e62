package utils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitoredMutex(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()

	m := MonitoredMutex{
		Name:   "test",
		Logger: logger,
		Limit:  time.Millisecond,
	}

	m.Lock()
	m.Unlock()
	assert.Empty(t, hook.Entries)

	m.Lock()
	time.Sleep(5 * time.Millisecond)
	m.Unlock()
	require.Len(t, hook.Entries, 1)
	e := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, e.Level)
	assert.Equal(t, "test", e.Data["lock_name"])
}
