package poller

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/buffer"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/mtconnect"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/shared"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/tracker"
	"github.com/united-manufacturing-hub/mtconnect-recorder/internal"
	"go.uber.org/zap"
)

// Prometheus metrics
var (
	pollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_polls_total",
			Help: "The total number of snapshot requests issued",
		},
	)
	pollErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_poll_errors_total",
			Help: "The total number of failed snapshot requests",
		},
	)
	acceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_accepted_samples_total",
			Help: "The total number of snapshots accepted as new samples",
		},
	)
)

type Config struct {
	Sources          map[string]string
	PollInterval     time.Duration
	RequestTimeout   time.Duration
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	IncludeCondition bool
}

// Poller drives one fetch loop per configured source. All loops share the
// buffer and the sequence tracker; backoff state is strictly per source, so
// an unreachable controller never delays polling of the healthy ones.
type Poller struct {
	cfg       Config
	buf       *buffer.Buffer
	sequences *tracker.SequenceTracker
	shutdown  internal.GracefulShutdownHandler
	backoffs  map[string]*backoff.Backoff
	wg        sync.WaitGroup
}

func New(cfg Config, buf *buffer.Buffer, sequences *tracker.SequenceTracker, shutdown internal.GracefulShutdownHandler) *Poller {
	backoffs := make(map[string]*backoff.Backoff, len(cfg.Sources))
	for name := range cfg.Sources {
		backoffs[name] = &backoff.Backoff{
			Min:    cfg.BackoffMin,
			Max:    cfg.BackoffMax,
			Factor: 2,
		}
	}
	return &Poller{
		cfg:       cfg,
		buf:       buf,
		sequences: sequences,
		shutdown:  shutdown,
		backoffs:  backoffs,
	}
}

// Start launches one fetch loop per source.
func (p *Poller) Start() {
	for name, url := range p.cfg.Sources {
		p.wg.Add(1)
		go p.fetchLoop(name, url)
	}
}

// Wait blocks until every fetch loop has observed the shutdown flag and
// exited. A loop may still be mid-wait on its own backoff, which is bounded
// by the backoff maximum.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) fetchLoop(name string, url string) {
	defer p.wg.Done()
	zap.S().Infof("[%s] fetch loop started (%s)", name, url)
	nextTick := time.Now()
	for !p.shutdown.ShuttingDown() {
		p.pollSource(name, url)

		// Schedule relative to the previous tick so the cadence does not
		// drift; when we have fallen behind, resynchronize to now instead
		// of firing in bursts.
		nextTick = nextTick.Add(p.cfg.PollInterval)
		if wait := time.Until(nextTick); wait > 0 {
			time.Sleep(wait)
		} else {
			nextTick = time.Now()
		}
	}
	zap.S().Infof("[%s] fetch loop stopped", name)
}

// pollSource performs one fetch for one source, applying that source's
// backoff on failure and resetting it on success.
func (p *Poller) pollSource(name string, url string) {
	if err := p.pollOnce(name, url); err != nil {
		delay := p.backoffs[name].Duration()
		zap.S().Warnf("[%s] fetch error: %s (backing off %s)", name, err, delay)
		time.Sleep(delay)
		return
	}
	p.backoffs[name].Reset()
}

func (p *Poller) pollOnce(name string, url string) error {
	pollsTotal.Inc()
	client := GetHTTPClient(url, p.cfg.RequestTimeout)
	resp, err := client.Get(url)
	if err != nil {
		pollErrorsTotal.Inc()
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		pollErrorsTotal.Inc()
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		pollErrorsTotal.Inc()
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		// The controller is up but has nothing to say.
		return nil
	}

	doc := mtconnect.Parse(body, p.cfg.IncludeCondition)
	if len(doc.Values) == 0 && !doc.HasSequence {
		// Unparsable or empty snapshot: no new data, not a source failure.
		return nil
	}
	sequence, accepted := p.sequences.Admit(name, doc.Sequence, doc.HasSequence)
	if !accepted {
		return nil
	}
	p.buf.Append(&shared.Sample{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Machine:   name,
		Sequence:  sequence,
		Fields:    doc.Values,
	})
	acceptedTotal.Inc()
	return nil
}
