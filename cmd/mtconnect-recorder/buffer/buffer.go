package buffer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/shared"
	"go.uber.org/zap"
)

// Prometheus metrics
var (
	bufferedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_buffered_samples_total",
			Help: "The total number of samples appended to the buffer",
		},
	)
	droppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_dropped_samples_total",
			Help: "The total number of buffered samples dropped on overflow",
		},
	)
)

// Buffer is the hand-off point between the fetch loop and the flush loop.
// The lock is held only for the append and for the drain pointer swap; all
// network and disk I/O happens outside of it.
type Buffer struct {
	entries []*shared.Sample
	maxSize int
	mu      sync.Mutex
}

func New(maxSize int) *Buffer {
	return &Buffer{maxSize: maxSize}
}

// Append queues one sample in arrival order. When the buffer is at capacity
// the oldest tenth is dropped first, so a stalled flusher degrades into
// explicit, logged data loss instead of unbounded growth.
func (b *Buffer) Append(sample *shared.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.maxSize {
		drop := len(b.entries) / 10
		if drop == 0 {
			drop = 1
		}
		remaining := make([]*shared.Sample, len(b.entries)-drop, b.maxSize)
		copy(remaining, b.entries[drop:])
		b.entries = remaining
		droppedTotal.Add(float64(drop))
		zap.S().Warnf("[%s] buffer full, dropped %d oldest entries", sample.Machine, drop)
	}
	b.entries = append(b.entries, sample)
	bufferedTotal.Inc()
}

// TakeAll drains the buffer in one atomic swap and returns the drained
// entries in arrival order.
func (b *Buffer) TakeAll() []*shared.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	taken := b.entries
	b.entries = nil
	return taken
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
