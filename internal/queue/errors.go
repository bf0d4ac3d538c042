package queue

import "fmt"

// QueueError reports that an entry failed while being processed: a sweep
// reaching ERROR, a callable returning an error, or a context switch
// failing to open its target. Per spec.md §4.6, the queue stops consuming
// but does not discard the entries that were still waiting behind the
// failed one.
type QueueError struct {
	EntryID string
	Cause   error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue: entry %s failed: %v", e.EntryID, e.Cause)
}

func (e *QueueError) Unwrap() error { return e.Cause }
