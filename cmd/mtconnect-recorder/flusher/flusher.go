package flusher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/buffer"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/shared"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/state"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/tracker"
	"github.com/united-manufacturing-hub/mtconnect-recorder/internal"
	"go.uber.org/zap"
)

// Prometheus metrics
var (
	flushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_flushed_samples_total",
			Help: "The total number of samples written to log files",
		},
	)
	writeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_write_errors_total",
			Help: "The total number of samples lost to write failures",
		},
	)
)

// Flusher periodically drains the buffer and appends the drained samples to
// one log file per machine and calendar day under the data directory. After
// every non-empty flush the sequence tracker is persisted, so a restart
// resumes deduplication where the last flush left off.
type Flusher struct {
	buf       *buffer.Buffer
	sequences *tracker.SequenceTracker
	shutdown  internal.GracefulShutdownHandler
	dataDir   string
	statePath string
	interval  time.Duration
	wg        sync.WaitGroup
}

func New(buf *buffer.Buffer, sequences *tracker.SequenceTracker, dataDir string, statePath string, interval time.Duration, shutdown internal.GracefulShutdownHandler) *Flusher {
	return &Flusher{
		buf:       buf,
		sequences: sequences,
		shutdown:  shutdown,
		dataDir:   dataDir,
		statePath: statePath,
		interval:  interval,
	}
}

func (f *Flusher) Start() {
	f.wg.Add(1)
	go f.flushLoop()
}

// Wait blocks until the flush loop has observed the shutdown flag and
// exited, bounded by one flush interval.
func (f *Flusher) Wait() {
	f.wg.Wait()
}

func (f *Flusher) flushLoop() {
	defer f.wg.Done()
	zap.S().Info("Flush loop started")
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for !f.shutdown.ShuttingDown() {
		<-ticker.C
		f.Flush()
	}
	zap.S().Info("Flush loop stopped")
}

// Flush drains the buffer in one atomic swap and writes every drained
// sample, grouped by machine and day, outside the buffer lock. It is also
// called directly for the final flush on shutdown. Returns the number of
// lines written.
func (f *Flusher) Flush() int {
	samples := f.buf.TakeAll()
	if len(samples) == 0 {
		return 0
	}

	groups := make(map[string][]*shared.Sample)
	for _, sample := range samples {
		path := filepath.Join(f.dataDir, sample.Machine, sample.Day()+".jsonl")
		groups[path] = append(groups[path], sample)
	}

	written := 0
	for path, group := range groups {
		written += f.appendToLog(path, group)
	}
	if written > 0 {
		zap.S().Infof("Flushed %d entries", written)
		// Persist the dedup baseline after each successful flush to keep
		// the duplicate window after a restart small. Telemetry is already
		// on disk at this point, so a failure here only costs dedup.
		if err := state.Save(f.statePath, f.sequences.SnapshotState()); err != nil {
			zap.S().Warnf("Failed to persist state: %s", err)
		}
	}
	return written
}

// appendToLog appends the given samples to one log file, one JSON object per
// line. A failing entry is logged and dropped; the rest of the group is
// still written.
func (f *Flusher) appendToLog(path string, samples []*shared.Sample) int {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		zap.S().Errorf("Failed to create log directory for %s: %s", path, err)
		writeErrorsTotal.Add(float64(len(samples)))
		return 0
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		zap.S().Errorf("Failed to open log file %s: %s", path, err)
		writeErrorsTotal.Add(float64(len(samples)))
		return 0
	}
	defer file.Close()

	written := 0
	for _, sample := range samples {
		line, marshalErr := json.Marshal(sample)
		if marshalErr != nil {
			zap.S().Errorf("Failed to marshal sample for %s: %s", path, marshalErr)
			writeErrorsTotal.Inc()
			continue
		}
		if _, writeErr := file.Write(append(line, '\n')); writeErr != nil {
			zap.S().Errorf("Failed to write entry to %s: %s", path, writeErr)
			writeErrorsTotal.Inc()
			continue
		}
		written++
		flushedTotal.Inc()
	}
	return written
}
