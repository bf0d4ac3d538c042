package sweep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagnetCoupled_CompletesFullRamp(t *testing.T) {
	field := &fakeAtSetpoint{fakeParam: newFakeParam("field", 0)}

	b, err := NewMagnetCoupled(field, Trajectory{Start: 0, Stop: 1, Step: 0.5, Mode: ModeOneShot}, time.Millisecond, time.Second, WithInterDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, b.Start(true))
	waitForState(t, b, StateDone, 2*time.Second)

	assert.Equal(t, 1.0, field.value)
}

func TestMagnetCoupled_RejectsNonPositivePollInterval(t *testing.T) {
	field := &fakeAtSetpoint{fakeParam: newFakeParam("field", 0)}
	_, err := NewMagnetCoupled(field, Trajectory{Start: 0, Stop: 1, Step: 0.5, Mode: ModeOneShot}, 0, time.Second)
	require.Error(t, err)
}
