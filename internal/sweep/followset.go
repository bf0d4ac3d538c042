package sweep

import "github.com/banshee-data/measureit/internal/param"

// FollowSet is the ordered list of Parameters sampled after each step.
type FollowSet struct {
	params []param.Parameter
}

// Add appends params to the follow set. It is the caller's responsibility
// to have already checked these aren't the sweep's controlled parameter(s);
// Base.FollowParam does that check.
func (f *FollowSet) Add(params ...param.Parameter) {
	f.params = append(f.params, params...)
}

// Params returns the follow set in declared order.
func (f *FollowSet) Params() []param.Parameter {
	return append([]param.Parameter(nil), f.params...)
}

// Names returns the follow set's parameter names in declared order.
func (f *FollowSet) Names() []string {
	names := make([]string, len(f.params))
	for i, p := range f.params {
		names[i] = p.Name()
	}
	return names
}

// Contains reports whether p (by name) is already in the follow set.
func (f *FollowSet) Contains(p param.Parameter) bool {
	for _, existing := range f.params {
		if existing.Name() == p.Name() {
			return true
		}
	}
	return false
}

// Read samples every parameter in the follow set, in order, via the given
// binding. It stops at the first failure.
func (f *FollowSet) Read(b *param.Binding) ([]float64, error) {
	values := make([]float64, len(f.params))
	for i, p := range f.params {
		v, err := b.SafeGet(p)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
