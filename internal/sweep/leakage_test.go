package sweep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeakageLimiter_TripsAfterMaxFlips(t *testing.T) {
	setter := newFakeParam("gate", 0)
	leakage := newFakeParam("leak", 1.0) // always over limit -> flips every step

	b, err := NewLeakageLimiter(setter, Trajectory{Start: 0, Stop: 10, Step: 1, Mode: ModeBidirectional}, leakage, 0.5, 2, WithInterDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, b.Start(false))
	waitForState(t, b, StateDone, time.Second)
}

func TestLeakageLimiter_RunsNormallyUnderLimit(t *testing.T) {
	setter := newFakeParam("gate", 0)
	leakage := newFakeParam("leak", 0.0) // never trips

	b, err := NewLeakageLimiter(setter, Trajectory{Start: 0, Stop: 2, Step: 1, Mode: ModeOneShot}, leakage, 0.5, 5, WithInterDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, b.Start(false))
	waitForState(t, b, StateDone, time.Second)
	assert.Equal(t, 3, b.Progress().PointsEmitted)
}
