package instrument

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort is an in-memory SerialPorter: writes go to a log, reads come from
// a canned queue of response lines.
type fakePort struct {
	written   [][]byte
	responses []string
	idx       int
}

func (f *fakePort) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.idx >= len(f.responses) {
		return 0, io.EOF
	}
	resp := f.responses[f.idx] + "\n"
	f.idx++
	n := copy(p, resp)
	return n, nil
}

func (f *fakePort) Close() error { return nil }

func TestSerialParameter_Get(t *testing.T) {
	port := &fakePort{responses: []string{"3.14159"}}
	p := NewSerialParameter(port, "vmeas", "V", "MEAS:VOLT?", "")

	v, err := p.Get()
	require.NoError(t, err)
	assert.InDelta(t, 3.14159, v, 1e-9)
	require.Len(t, port.written, 1)
	assert.Equal(t, "MEAS:VOLT?\n", string(port.written[0]))
}

func TestSerialParameter_Set(t *testing.T) {
	port := &fakePort{}
	p := NewSerialParameter(port, "vsource", "V", "", "VOLT %g")

	err := p.Set(1.5)
	require.NoError(t, err)
	require.Len(t, port.written, 1)
	assert.Equal(t, "VOLT 1.5\n", string(port.written[0]))
}

func TestSerialParameter_SetWithoutCommandPattern(t *testing.T) {
	p := NewSerialParameter(&fakePort{}, "vmeas", "V", "MEAS:VOLT?", "")

	err := p.Set(1.0)
	require.Error(t, err)
}

func TestSerialParameter_GetParseError(t *testing.T) {
	port := &fakePort{responses: []string{"not-a-number"}}
	p := NewSerialParameter(port, "vmeas", "V", "MEAS:VOLT?", "")

	_, err := p.Get()
	require.Error(t, err)
}

func TestSerialParameter_Close(t *testing.T) {
	port := &fakePort{}
	p := NewSerialParameter(port, "vmeas", "V", "MEAS:VOLT?", "")
	require.NoError(t, p.Close())
}
