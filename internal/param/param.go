// Package param provides the uniform read/write boundary the sweep engine
// uses to talk to instrument channels, with the retry and error
// classification policy described for Parameter Binding.
package param

import (
	"fmt"
	"time"
)

// Parameter is an external handle owned by an instrument. The sweep engine
// holds only a non-owning reference to it.
type Parameter interface {
	// Name is a stable identifier, unique within the owning instrument.
	Name() string
	// Unit is the physical unit of the parameter's value, e.g. "V", "A".
	Unit() string
	// Get reads the current value from the instrument.
	Get() (float64, error)
}

// Setter is implemented by parameters that can also be written to. Not every
// Parameter is settable — follow parameters are typically get-only.
type Setter interface {
	Parameter
	Set(value float64) error
}

// Labeled is implemented by parameters that carry a human-readable label and
// an optional numeric range, used only for metadata/UI purposes.
type Labeled interface {
	Label() string
	Range() (min, max float64, ok bool)
}

// ErrorKind classifies a ParameterError.
type ErrorKind int

const (
	// ErrGet marks a failure from Binding.SafeGet.
	ErrGet ErrorKind = iota
	// ErrSet marks a failure from Binding.SafeSet.
	ErrSet
)

func (k ErrorKind) String() string {
	switch k {
	case ErrGet:
		return "get"
	case ErrSet:
		return "set"
	default:
		return "unknown"
	}
}

// ParameterError reports a failed instrument access, attributing it to the
// parameter, the kind of access, and (for Set) the value that was attempted.
type ParameterError struct {
	Kind      ErrorKind
	Parameter string
	Value     float64
	HasValue  bool
	Cause     error
}

func (e *ParameterError) Error() string {
	switch e.Kind {
	case ErrSet:
		return fmt.Sprintf("Could not set parameter %q to %g: %v", e.Parameter, e.Value, e.Cause)
	default:
		return fmt.Sprintf("could not get parameter %q: %v", e.Parameter, e.Cause)
	}
}

func (e *ParameterError) Unwrap() error { return e.Cause }

// getRetryDelay is the fixed backoff between the first and second attempt of
// SafeGet. It is not configurable — spec.md fixes it at 1s.
var getRetryDelay = time.Second

// Binding wraps get/set access to instrument Parameters with the retry and
// error-classification policy of Parameter Binding. It holds no state beyond
// the retry delay, and is safe to share across sweeps; it is NOT safe to call
// concurrently against the same underlying Parameter, since instruments are
// assumed not thread-safe.
type Binding struct {
	// sleep is overridable in tests to avoid a real 1s sleep.
	sleep func(time.Duration)
}

// NewBinding returns a Binding using the real-time retry delay.
func NewBinding() *Binding {
	return &Binding{sleep: time.Sleep}
}

// SafeGet invokes p.Get(). On failure it waits 1s and retries exactly once;
// if the retry also fails, it returns a ParameterError{Kind: ErrGet}.
func (b *Binding) SafeGet(p Parameter) (float64, error) {
	v, err := p.Get()
	if err == nil {
		return v, nil
	}
	b.sleepFor(getRetryDelay)
	v, err = p.Get()
	if err != nil {
		return 0, &ParameterError{Kind: ErrGet, Parameter: p.Name(), Cause: err}
	}
	return v, nil
}

// SafeSet invokes s.Set(value). It never retries: setting may have
// side effects on the instrument, so a failed write is reported immediately
// as a ParameterError{Kind: ErrSet}.
func (b *Binding) SafeSet(s Setter, value float64) error {
	if err := s.Set(value); err != nil {
		return &ParameterError{Kind: ErrSet, Parameter: s.Name(), Value: value, HasValue: true, Cause: err}
	}
	return nil
}

func (b *Binding) sleepFor(d time.Duration) {
	if b.sleep != nil {
		b.sleep(d)
		return
	}
	time.Sleep(d)
}
