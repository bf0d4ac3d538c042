package sweep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeOnly_CompletesAfterMaxTimeElapses(t *testing.T) {
	follow := newFakeParam("temp", 4.2)

	b, err := NewTimeOnly(30*time.Millisecond, WithInterDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, b.FollowParam(follow))

	start := time.Now()
	require.NoError(t, b.Start(false))
	waitForState(t, b, StateDone, 2*time.Second)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.True(t, b.Progress().PointsEmitted > 0)
}

func TestTimeOnly_MaxTimeIsCadenceIndependent(t *testing.T) {
	// A coarser inter_delay must not change how long the sweep runs: two
	// runs with the same max_time but different inter_delay should both
	// finish at roughly the same wall-clock point, not after the same
	// number of samples.
	fast, err := NewTimeOnly(200*time.Millisecond, WithInterDelay(10*time.Millisecond))
	require.NoError(t, err)
	slow, err := NewTimeOnly(200*time.Millisecond, WithInterDelay(50*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, fast.Start(false))
	require.NoError(t, slow.Start(false))
	waitForState(t, fast, StateDone, 2*time.Second)
	waitForState(t, slow, StateDone, 2*time.Second)

	assert.Greater(t, fast.Progress().PointsEmitted, slow.Progress().PointsEmitted)
}

func TestTimeOnly_RunsIndefinitelyUntilStopped(t *testing.T) {
	b, err := NewTimeOnly(0, WithInterDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, b.Start(false))
	waitForState(t, b, StateRunning, time.Second)
	time.Sleep(10 * time.Millisecond)
	b.Stop()
	waitForState(t, b, StateDone, time.Second)
	assert.True(t, b.Progress().PointsEmitted > 0)
}
