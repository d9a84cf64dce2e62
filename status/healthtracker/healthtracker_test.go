package healthtracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureStreak(t *testing.T) {
	ht := New(HealthConfig{}, "streak_test", "poll the backend")

	// Zero config fields get the documented defaults.
	assert.Equal(t, DefaultEvaluationInterval, ht.Config.EvaluationInterval)
	assert.Equal(t, uint32(DefaultErrorSequence), ht.Config.ErrorSequence)

	assert.Equal(t, uint32(0), ht.fails.Load())
	ht.AddFailure()
	ht.AddFailure()
	assert.Equal(t, uint32(2), ht.fails.Load())
	assert.False(t, ht.failingSince.Load().IsZero())

	ht.AddSuccess()
	assert.Equal(t, uint32(0), ht.fails.Load())
}
