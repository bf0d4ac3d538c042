package queue

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// ColumnSummary is the mean/stddev of one measurement column over a
// completed sweep entry, generalized from the teacher's
// sweep.ComboResult's per-bucket mean/stddev fields (internal/lidar/sweep's
// acceptance-rate summary) onto arbitrary follow-parameter columns.
type ColumnSummary struct {
	Column string
	Mean   float64
	Stddev float64
	N      int
}

// Summary is the per-entry completion summary queue.Queue records for the
// most recently finished sweep entry.
type Summary struct {
	EntryID string
	Columns []ColumnSummary
}

// columnAccumulator collects a running sample per column so a Summary can
// be computed once the sweep terminates, without holding the full
// persistence row history in memory.
type columnAccumulator struct {
	mu      sync.Mutex
	names   []string
	samples [][]float64
}

func newColumnAccumulator(names []string) *columnAccumulator {
	return &columnAccumulator{names: names, samples: make([][]float64, len(names))}
}

func (a *columnAccumulator) add(values []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, v := range values {
		if i >= len(a.samples) {
			break
		}
		a.samples[i] = append(a.samples[i], v)
	}
}

func (a *columnAccumulator) summary(entryID string) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	cols := make([]ColumnSummary, len(a.names))
	for i, name := range a.names {
		mean, std := stat.MeanStdDev(a.samples[i], nil)
		cols[i] = ColumnSummary{Column: name, Mean: mean, Stddev: std, N: len(a.samples[i])}
	}
	return Summary{EntryID: entryID, Columns: cols}
}

// LastSummary returns the completion summary for the most recently
// finished sweep entry, or the zero Summary if none has finished yet.
func (q *Queue) LastSummary() Summary {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastSummary
}
