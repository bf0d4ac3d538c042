package sweep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/measureit/internal/param"
)

func TestSimultaneous_StepsInLockstep(t *testing.T) {
	gateA := newFakeParam("gateA", 0)
	gateB := newFakeParam("gateB", 0)

	b, err := NewSimultaneous(
		[]param.Setter{gateA, gateB},
		[]Trajectory{
			{Start: 0, Stop: 1, Step: 0.5, Mode: ModeOneShot},
			{Start: 10, Stop: 11, Step: 0.5, Mode: ModeOneShot},
		},
		WithInterDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, b.Start(false))
	waitForState(t, b, StateDone, time.Second)

	assert.Equal(t, 3, b.Progress().PointsEmitted)
	assert.Equal(t, 1.0, gateA.value)
	assert.Equal(t, 11.0, gateB.value)
}

func TestSimultaneous_BidirectionalFlipsAllAxesTogether(t *testing.T) {
	gateA := newFakeParam("gateA", 0)
	gateB := newFakeParam("gateB", 0)

	b, err := NewSimultaneous(
		[]param.Setter{gateA, gateB},
		[]Trajectory{
			{Start: 0, Stop: 1, Step: 0.5, Mode: ModeBidirectional},
			{Start: 10, Stop: 11, Step: 0.5, Mode: ModeBidirectional},
		},
		WithInterDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	id, sub := b.Subscribe(ModeBlocking)

	require.NoError(t, b.Start(false))

	var setpointsA []float64
	var breaks int
	deadline := time.After(2 * time.Second)
collect:
	for {
		select {
		case pt := <-sub:
			if pt.Sample.Break {
				breaks++
				if breaks == 1 {
					// first direction flip observed (end of the forward leg)
					break collect
				}
				continue
			}
			setpointsA = append(setpointsA, pt.Sample.Setpoints[0])
		case <-deadline:
			t.Fatal("timed out waiting for a direction flip")
		}
	}
	assert.Equal(t, -1, b.Progress().Direction)
	b.Unsubscribe(id)
	b.Kill()

	// Forward leg: 0, 0.5, 1 (3 points), then a flip, then the backward leg
	// begins at 1 again.
	require.Len(t, setpointsA, 3)
	assert.Equal(t, []float64{0, 0.5, 1}, setpointsA)
	assert.Equal(t, 1.0, gateA.value)
	assert.Equal(t, 11.0, gateB.value)
}

func TestSimultaneous_RejectsMismatchedCounts(t *testing.T) {
	gateA := newFakeParam("gateA", 0)
	gateB := newFakeParam("gateB", 0)

	_, err := NewSimultaneous(
		[]param.Setter{gateA, gateB},
		[]Trajectory{
			{Start: 0, Stop: 1, Step: 0.5, Mode: ModeOneShot},
			{Start: 10, Stop: 11, Step: 1, Mode: ModeOneShot},
		},
	)
	require.Error(t, err)
}
