package main

import (
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/buffer"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/flusher"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/poller"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/state"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/tracker"
	"github.com/united-manufacturing-hub/mtconnect-recorder/internal"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"go.uber.org/zap"
)

var buildtime string

func main() {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION") //nolint:errcheck
	log := logger.New(logLevel)
	defer func(logger *zap.SugaredLogger) {
		_ = logger.Sync()
	}(log)

	zap.S().Infof("This is mtconnect-recorder build date: %s", buildtime)

	InitPrometheus()

	zap.S().Debug("Checking environment variables")
	var sources map[string]string
	err := env.GetAsType("MTCONNECT_SOURCES", &sources, true, map[string]string{})
	if err != nil {
		zap.S().Fatal(err)
	}
	if len(sources) == 0 {
		zap.S().Fatal("MTCONNECT_SOURCES must name at least one machine")
	}

	dataDir, err := env.GetAsString("DATA_DIR", false, "data")
	if err != nil {
		zap.S().Error(err)
	}
	statePath, err := env.GetAsString("STATE_FILE", false, "recorder_state.json")
	if err != nil {
		zap.S().Error(err)
	}
	pollIntervalMs, err := env.GetAsInt("POLL_INTERVAL_MS", false, 200)
	if err != nil {
		zap.S().Error(err)
	}
	flushIntervalMs, err := env.GetAsInt("FLUSH_INTERVAL_MS", false, 1000)
	if err != nil {
		zap.S().Error(err)
	}
	requestTimeoutMs, err := env.GetAsInt("REQUEST_TIMEOUT_MS", false, 1000)
	if err != nil {
		zap.S().Error(err)
	}
	maxBufferSize, err := env.GetAsInt("MAX_BUFFER_SIZE", false, 50000)
	if err != nil {
		zap.S().Error(err)
	}
	if maxBufferSize < 1 {
		zap.S().Fatal("MAX_BUFFER_SIZE must be at least 1")
	}
	includeCondition, err := env.GetAsBool("INCLUDE_CONDITION", false, false)
	if err != nil {
		zap.S().Error(err)
	}
	backoffInitialMs, err := env.GetAsInt("BACKOFF_INITIAL_MS", false, 500)
	if err != nil {
		zap.S().Error(err)
	}
	backoffMaxMs, err := env.GetAsInt("BACKOFF_MAX_MS", false, 8000)
	if err != nil {
		zap.S().Error(err)
	}

	if err = os.MkdirAll(dataDir, 0750); err != nil {
		zap.S().Fatalf("Failed to create data directory %s: %s", dataDir, err)
	}

	sequences := tracker.New(state.Load(statePath))
	buf := buffer.New(maxBufferSize)

	var fetch *poller.Poller
	var flush *flusher.Flusher

	gs := internal.NewGracefulShutdown(func() error {
		fetch.Wait()
		flush.Wait()
		// One final unconditional flush so nothing buffered is lost on a
		// clean exit.
		flush.Flush()
		return nil
	})

	fetch = poller.New(poller.Config{
		Sources:          sources,
		PollInterval:     time.Duration(pollIntervalMs) * time.Millisecond,
		RequestTimeout:   time.Duration(requestTimeoutMs) * time.Millisecond,
		BackoffMin:       time.Duration(backoffInitialMs) * time.Millisecond,
		BackoffMax:       time.Duration(backoffMaxMs) * time.Millisecond,
		IncludeCondition: includeCondition,
	}, buf, sequences, gs)
	flush = flusher.New(buf, sequences, dataDir, statePath, time.Duration(flushIntervalMs)*time.Millisecond, gs)

	InitHealthCheck(dataDir)

	zap.S().Infof("Recording %d sources into %s", len(sources), dataDir)
	fetch.Start()
	flush.Start()

	gs.Wait()
	zap.S().Info("Shutdown complete")
}

func InitPrometheus() {
	// Prometheus
	metricsPath := "/metrics"
	metricsPort := ":2112"
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	http.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(metricsPort, nil)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()
}

func InitHealthCheck(dataDir string) {
	zap.S().Debugf("Setting up healthcheck")

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000000))
	health.AddReadinessCheck("data-dir", func() error {
		return os.MkdirAll(dataDir, 0750)
	})
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe("0.0.0.0:8086", health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
}
