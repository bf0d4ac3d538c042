package instrument

import (
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// SerialAtSetpointParameter wraps a SerialParameter with an arrival query,
// for instruments that ramp to a written setpoint internally (magnet power
// supplies) rather than jumping instantaneously — satisfies
// sweep.AtSetpointParameter. arrivedQuery's response is parsed as a float64
// and compared against the target within tolerance.
type SerialAtSetpointParameter struct {
	*SerialParameter
	arrivedQuery string
	tolerance    float64
}

// OpenSerialAtSetpointParameter opens a real serial port at path and wraps
// it as an AtSetpointParameter.
func OpenSerialAtSetpointParameter(path string, opts PortOptions, name, unit, queryCmd, setCmdPattern, arrivedQuery string, tolerance float64) (*SerialAtSetpointParameter, error) {
	mode, err := opts.mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewSerialAtSetpointParameter(port, name, unit, queryCmd, setCmdPattern, arrivedQuery, tolerance), nil
}

// NewSerialAtSetpointParameter wraps an already-open port. arrivedQuery asks
// the instrument for its present value (not a boolean), since most bench
// power supplies only expose "what's the output now", not "have you
// arrived".
func NewSerialAtSetpointParameter(port SerialPorter, name, unit, queryCmd, setCmdPattern, arrivedQuery string, tolerance float64) *SerialAtSetpointParameter {
	return &SerialAtSetpointParameter{
		SerialParameter: NewSerialParameter(port, name, unit, queryCmd, setCmdPattern),
		arrivedQuery:    arrivedQuery,
		tolerance:       tolerance,
	}
}

// AtSetpoint reports whether the instrument's present value is within
// tolerance of target.
func (s *SerialAtSetpointParameter) AtSetpoint(target float64) (bool, error) {
	s.mu.Lock()
	if _, err := s.port.Write([]byte(s.arrivedQuery + "\n")); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("write arrival query to %s: %w", s.name, err)
	}
	line, err := s.reader.ReadString('\n')
	s.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("read arrival response from %s: %w", s.name, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return false, fmt.Errorf("parse arrival response from %s: %w", s.name, err)
	}
	diff := v - target
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.tolerance, nil
}
