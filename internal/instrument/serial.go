// Package instrument provides reference Parameter implementations that back
// onto real hardware. It ships one: a line-oriented serial instrument
// channel, adapted from the teacher's serialmux port abstraction but
// reshaped for the sweep engine's synchronous get/set access pattern instead
// of serialmux's multi-subscriber event fan-out.
package instrument

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// PortOptions describes the serial connection parameters used to open a real
// port, mirroring the teacher's internal/serialmux.PortOptions shape.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int // 1 or 2
	Parity   string // "N", "E", "O"
}

// DefaultPortOptions returns sane defaults for a SCPI-ish bench instrument.
func DefaultPortOptions() PortOptions {
	return PortOptions{BaudRate: 19200, DataBits: 8, StopBits: 1, Parity: "N"}
}

func (o PortOptions) mode() (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: o.BaudRate, DataBits: o.DataBits}
	switch o.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch strings.ToUpper(o.Parity) {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// SerialPorter is the minimal interface a serial-backed channel needs. Real
// ports (go.bug.st/serial.Port) and in-memory fakes both satisfy it, which is
// what lets this package be unit tested without hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialParameter is a Parameter/Setter backed by a line-oriented serial
// instrument: Get sends a query string and parses a float64 out of the
// response line; Set sends a command string built from a printf-style
// pattern. Only one goroutine may use a SerialParameter at a time — per
// spec.md §5, parameters are assumed not thread-safe.
type SerialParameter struct {
	name, unit    string
	port          SerialPorter
	reader        *bufio.Reader
	mu            sync.Mutex
	queryCmd      string // e.g. "MEAS:VOLT?"
	setCmdPattern string // e.g. "VOLT %g", empty if get-only
}

// OpenSerialParameter opens a real serial port at path and wraps it as a
// Parameter.
func OpenSerialParameter(path string, opts PortOptions, name, unit, queryCmd, setCmdPattern string) (*SerialParameter, error) {
	mode, err := opts.mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewSerialParameter(port, name, unit, queryCmd, setCmdPattern), nil
}

// NewSerialParameter wraps an already-open port. Exposed so tests (and
// alternative transports) can supply a fake SerialPorter.
func NewSerialParameter(port SerialPorter, name, unit, queryCmd, setCmdPattern string) *SerialParameter {
	return &SerialParameter{
		name:          name,
		unit:          unit,
		port:          port,
		reader:        bufio.NewReader(port),
		queryCmd:      queryCmd,
		setCmdPattern: setCmdPattern,
	}
}

func (s *SerialParameter) Name() string { return s.name }
func (s *SerialParameter) Unit() string { return s.unit }

// Get writes the query command and parses the next response line as a
// float64.
func (s *SerialParameter) Get() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.port.Write([]byte(s.queryCmd + "\n")); err != nil {
		return 0, fmt.Errorf("write query to %s: %w", s.name, err)
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("read response from %s: %w", s.name, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("parse response from %s: %w", s.name, err)
	}
	return v, nil
}

// Set formats value into setCmdPattern and writes it. Returns an error if
// the parameter was constructed without a set command.
func (s *SerialParameter) Set(value float64) error {
	if s.setCmdPattern == "" {
		return fmt.Errorf("parameter %s is get-only", s.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := fmt.Sprintf(s.setCmdPattern, value)
	if _, err := s.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("write command to %s: %w", s.name, err)
	}
	return nil
}

// Close closes the underlying port.
func (s *SerialParameter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
