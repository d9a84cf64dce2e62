package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCheck(t *testing.T) {
	require.NoError(t, DefaultConfig.Check())

	c := DefaultConfig
	c.Level = "nope"
	assert.ErrorContains(t, c.Check(), "log.level")

	c = DefaultConfig
	c.Format = "xml"
	assert.ErrorContains(t, c.Check(), "log.format")

	c = DefaultConfig
	c.Timestamp = "maybe"
	assert.ErrorContains(t, c.Check(), "log.timestamp")

	// An empty timestamp means the default short form.
	c = DefaultConfig
	c.Timestamp = ""
	assert.NoError(t, c.Check())
}

func TestConfigMerge(t *testing.T) {
	merged := DefaultConfig.Merge(Config{Level: "debug"})
	assert.Equal(t, "debug", merged.Level)
	assert.Equal(t, DefaultConfig.Format, merged.Format)
	assert.Equal(t, DefaultConfig.Timestamp, merged.Timestamp)

	// Empty override fields change nothing.
	assert.Equal(t, DefaultConfig, DefaultConfig.Merge(Config{}))
}
