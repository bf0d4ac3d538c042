package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id      string
	parent  *fakeHandle
	killed  bool
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) RelatedTo(other Handle) bool {
	o, ok := other.(*fakeHandle)
	if !ok {
		return false
	}
	if f == o {
		return true
	}
	for a := f.parent; a != nil; a = a.parent {
		if a == o {
			return true
		}
	}
	for a := o.parent; a != nil; a = a.parent {
		if a == f {
			return true
		}
	}
	// shared ancestor
	seen := map[*fakeHandle]bool{}
	for a := f.parent; a != nil; a = a.parent {
		seen[a] = true
	}
	for a := o.parent; a != nil; a = a.parent {
		if seen[a] {
			return true
		}
	}
	return false
}

func (f *fakeHandle) Kill() { f.killed = true }

func TestStart_AllowsFirstSweep(t *testing.T) {
	r := New()
	h := &fakeHandle{id: "a"}
	require.NoError(t, r.Start(h))
	assert.Len(t, r.Members(), 1)
}

func TestStart_RejectsUnrelatedConcurrent(t *testing.T) {
	r := New()
	a := &fakeHandle{id: "a"}
	b := &fakeHandle{id: "b"}

	require.NoError(t, r.Start(a))
	err := r.Start(b)
	require.Error(t, err)
	var cerr *ConcurrencyError
	require.ErrorAs(t, err, &cerr)
}

func TestStart_AllowsRelatedTwoAxis(t *testing.T) {
	r := New()
	outer := &fakeHandle{id: "outer"}
	inner := &fakeHandle{id: "inner", parent: outer}

	require.NoError(t, r.Start(outer))
	require.NoError(t, r.Start(inner))
	assert.Len(t, r.Members(), 2)
}

func TestStart_AllowsSiblingsSharingAncestor(t *testing.T) {
	r := New()
	root := &fakeHandle{id: "root"}
	childA := &fakeHandle{id: "a", parent: root}
	childB := &fakeHandle{id: "b", parent: root}

	require.NoError(t, r.Start(childA))
	require.NoError(t, r.Start(childB))
}

func TestStartForce_KillsUnrelatedMembers(t *testing.T) {
	r := New()
	a := &fakeHandle{id: "a"}
	b := &fakeHandle{id: "b"}

	require.NoError(t, r.Start(a))
	r.StartForce(b)

	assert.True(t, a.killed)
	members := r.Members()
	require.Len(t, members, 1)
	assert.Equal(t, "b", members[0].ID())
}

func TestRemove_AllowsSubsequentUnrelatedStart(t *testing.T) {
	r := New()
	a := &fakeHandle{id: "a"}
	b := &fakeHandle{id: "b"}

	require.NoError(t, r.Start(a))
	require.Error(t, r.Start(b))

	r.Remove(a)
	require.NoError(t, r.Start(b))
}

func TestReset_ClearsMembers(t *testing.T) {
	r := New()
	require.NoError(t, r.Start(&fakeHandle{id: "a"}))
	r.Reset()
	assert.Empty(t, r.Members())
}
