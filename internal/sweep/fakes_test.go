package sweep

import (
	"sync"

	"github.com/banshee-data/measureit/internal/param"
)

// fakeParam is a minimal in-memory param.Parameter/param.Setter double
// shared across this package's tests.
type fakeParam struct {
	mu    sync.Mutex
	name  string
	unit  string
	value float64
	setFn func(v float64) error
	getFn func() (float64, error)
}

func (f *fakeParam) Name() string { return f.name }
func (f *fakeParam) Unit() string { return f.unit }

func (f *fakeParam) Get() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getFn != nil {
		return f.getFn()
	}
	return f.value, nil
}

func (f *fakeParam) Set(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setFn != nil {
		if err := f.setFn(v); err != nil {
			return err
		}
	}
	f.value = v
	return nil
}

func newFakeParam(name string, initial float64) *fakeParam {
	return &fakeParam{name: name, unit: "V", value: initial}
}

// fakeAtSetpoint wraps fakeParam for MagnetCoupled tests: it reports
// AtSetpoint true as soon as Set has been called with that target.
type fakeAtSetpoint struct {
	*fakeParam
	arrived float64
}

func (f *fakeAtSetpoint) AtSetpoint(target float64) (bool, error) {
	v, err := f.Get()
	if err != nil {
		return false, err
	}
	return v == target, nil
}

// countingKind is a minimal Kind test double whose step() just counts calls
// and completes after n of them, used to exercise Base's lifecycle/runner
// plumbing independent of any real kind's stepping logic.
type countingKind struct {
	n       int
	count   int
	stepped chan struct{}
}

func (k *countingKind) validate() error   { return nil }
func (k *countingKind) kindName() string  { return "counting" }
func (k *countingKind) rampToStart(b *Base) error { return nil }

func (k *countingKind) step(b *Base) ([]Sample, bool, error) {
	k.count++
	if k.stepped != nil {
		select {
		case k.stepped <- struct{}{}:
		default:
		}
	}
	if b.sleepInterDelay() {
		return nil, false, nil
	}
	complete := k.n > 0 && k.count >= k.n
	return []Sample{{Setpoints: []float64{float64(k.count)}, Values: []float64{}}}, complete, nil
}

func (k *countingKind) supportsFlip() bool                    { return true }
func (k *countingKind) flip() error                           { return nil }
func (k *countingKind) totalPoints() *int                     { return nil }
func (k *countingKind) attributes() map[string]interface{}    { return nil }
func (k *countingKind) controlled() []ControlledMeta           { return nil }
func (k *countingKind) controlledParams() []param.Parameter    { return nil }
