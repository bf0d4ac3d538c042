package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnAccumulator_ComputesMeanStddevPerColumn(t *testing.T) {
	acc := newColumnAccumulator([]string{"gate", "current"})
	acc.add([]float64{1, 10})
	acc.add([]float64{2, 20})
	acc.add([]float64{3, 30})

	s := acc.summary("entry-1")
	assert.Equal(t, "entry-1", s.EntryID)
	assert.Equal(t, "gate", s.Columns[0].Column)
	assert.InDelta(t, 2.0, s.Columns[0].Mean, 1e-9)
	assert.Equal(t, 3, s.Columns[0].N)
	assert.Equal(t, "current", s.Columns[1].Column)
	assert.InDelta(t, 20.0, s.Columns[1].Mean, 1e-9)
}

func TestQueue_LastSummaryZeroBeforeAnyCompletion(t *testing.T) {
	q := New()
	assert.Equal(t, Summary{}, q.LastSummary())
}
