package tracker

import (
	"sync"

	"go.uber.org/zap"
)

// SequenceTracker remembers the last accepted sequence number per source so
// snapshots that carry no new information are not recorded twice. It is
// seeded from the persisted state file at startup and snapshotted back to
// disk after every non-empty flush.
type SequenceTracker struct {
	last map[string]int64
	mu   sync.Mutex
}

func New(seed map[string]int64) *SequenceTracker {
	last := make(map[string]int64, len(seed))
	for source, sequence := range seed {
		last[source] = sequence
	}
	return &SequenceTracker{last: last}
}

// Admit decides whether a freshly parsed snapshot is new for the source and
// returns the sequence number the sample must be stamped with.
//
// A snapshot without a sequence is a heartbeat: it is always recorded and
// carries the previously accepted sequence (-1 if there is none), without
// touching the table. A sequence equal to the last accepted one is a
// duplicate. Anything else becomes the new baseline, including a sequence
// smaller than the last accepted one, which happens when a controller
// restarts and resets its counter.
func (t *SequenceTracker) Admit(source string, sequence int64, hasSequence bool) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, seen := t.last[source]
	if !hasSequence {
		if !seen {
			last = -1
		}
		return last, true
	}
	if seen && sequence == last {
		return sequence, false
	}
	if seen && sequence < last {
		zap.S().Warnf("[%s] sequence went backwards (%d -> %d), accepting as new baseline", source, last, sequence)
	}
	t.last[source] = sequence
	return sequence, true
}

// SnapshotState returns a copy of the table for persistence.
func (t *SequenceTracker) SnapshotState() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make(map[string]int64, len(t.last))
	for source, sequence := range t.last {
		snapshot[source] = sequence
	}
	return snapshot
}
