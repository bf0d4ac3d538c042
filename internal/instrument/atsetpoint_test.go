package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialAtSetpointParameter_AtSetpoint(t *testing.T) {
	port := &fakePort{responses: []string{"2.999"}}
	p := NewSerialAtSetpointParameter(port, "magnet", "T", "MEAS:FIELD?", "FIELD %g", "FIELD:NOW?", 0.01)

	ok, err := p.AtSetpoint(3.0)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, port.written, 1)
	assert.Equal(t, "FIELD:NOW?\n", string(port.written[0]))
}

func TestSerialAtSetpointParameter_NotYetArrived(t *testing.T) {
	port := &fakePort{responses: []string{"1.5"}}
	p := NewSerialAtSetpointParameter(port, "magnet", "T", "MEAS:FIELD?", "FIELD %g", "FIELD:NOW?", 0.01)

	ok, err := p.AtSetpoint(3.0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSerialAtSetpointParameter_SatisfiesSetter(t *testing.T) {
	port := &fakePort{}
	p := NewSerialAtSetpointParameter(port, "magnet", "T", "MEAS:FIELD?", "FIELD %g", "FIELD:NOW?", 0.01)
	require.NoError(t, p.Set(1.0))
	require.Len(t, port.written, 1)
	assert.Equal(t, "FIELD 1\n", string(port.written[0]))
}
