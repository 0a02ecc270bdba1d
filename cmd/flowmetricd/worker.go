package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/flowmetric-io/flowmetric/internal/config"
	"github.com/flowmetric-io/flowmetric/internal/logging"
	"github.com/flowmetric-io/flowmetric/internal/pipeline"
	"github.com/flowmetric-io/flowmetric/internal/sensor"
	"github.com/flowmetric-io/flowmetric/internal/sensor/datadog"
	"github.com/flowmetric-io/flowmetric/internal/sensor/prom"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// WorkerOptions contains the configuration for creating a worker.
type WorkerOptions struct {
	Config    *config.Config
	Logger    *logging.Logger
	WorkerID  string
	Version   string
	GitCommit string
	BuildTime string
}

// Worker runs the stream pipeline with the configured metrics backend.
type Worker struct {
	opts    WorkerOptions
	logger  *logging.Logger
	sensor  sensor.Sensor
	runtime *pipeline.Runtime

	// closeSensor releases backend resources (statsd socket, metrics
	// HTTP listener).
	closeSensor func()

	mu      sync.Mutex
	started bool
}

// NewWorker creates a new Worker instance but does not start it.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	cfg := opts.Config

	w := &Worker{
		opts:   opts,
		logger: opts.Logger,
	}

	snsr, closeSensor, err := buildSensor(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}
	w.sensor = snsr
	w.closeSensor = closeSensor

	streams := make([]*pipeline.Stream, 0, len(cfg.Kafka.Topics))
	for _, topic := range cfg.Kafka.Topics {
		streams = append(streams, pipeline.NewStream(topic))
	}

	runtime, err := pipeline.New(pipeline.Config{
		Brokers:           cfg.Kafka.Brokers,
		GroupID:           cfg.Kafka.GroupID,
		ClientID:          cfg.Kafka.ClientID,
		SinkTopic:         cfg.Kafka.SinkTopic,
		CommitInterval:    time.Duration(cfg.Kafka.CommitIntervalMs) * time.Millisecond,
		EndOffsetInterval: time.Duration(cfg.Kafka.EndOffsetPollMs) * time.Millisecond,
	}, snsr, streams...)
	if err != nil {
		closeSensor()
		return nil, err
	}
	w.runtime = runtime

	return w, nil
}

// buildSensor constructs the metrics backend named by the configuration.
// The returned close function is always safe to call.
func buildSensor(cfg *config.Config, logger *logging.Logger) (sensor.Sensor, func(), error) {
	switch cfg.Observability.Backend {
	case "datadog":
		mon, err := datadog.New(datadog.Config{
			Host:   cfg.Statsd.Host,
			Port:   cfg.Statsd.Port,
			Prefix: cfg.Statsd.Prefix,
			Rate:   cfg.Statsd.Rate,
		})
		if err != nil {
			return nil, nil, err
		}
		return mon, func() { _ = mon.Close() }, nil

	case "prometheus":
		reg := prometheus.NewRegistry()
		mon := prom.NewWithRegistry(cfg.Statsd.Prefix, reg)

		srv := prom.NewServer(cfg.Prometheus.ListenAddr, reg)
		if err := srv.Start(); err != nil {
			return nil, nil, err
		}
		logger.Infof("metrics endpoint listening", map[string]any{"addr": srv.Addr()})
		return mon, func() { _ = srv.Close() }, nil

	case "none":
		return sensor.NewMonitor(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown metrics backend %q", cfg.Observability.Backend)
	}
}

// Start runs the pipeline until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.started = true
	w.mu.Unlock()

	cfg := w.opts.Config
	w.logger.Infof("starting worker", map[string]any{
		"workerId": w.opts.WorkerID,
		"brokers":  strings.Join(cfg.Kafka.Brokers, ","),
		"topics":   strings.Join(cfg.Kafka.Topics, ","),
		"groupId":  cfg.Kafka.GroupID,
		"backend":  cfg.Observability.Backend,
		"version":  w.opts.Version,
	})

	return w.runtime.Run(ctx)
}

// Shutdown flushes pending sends and releases backend resources.
func (w *Worker) Shutdown(ctx context.Context) error {
	err := w.runtime.Flush(ctx)
	w.closeSensor()
	return err
}

func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println(usage)
		fs.PrintDefaults()
	}
	return fs
}

func runWorker(args []string) {
	fs := newFlagSet("run", `Usage: flowmetricd run [options]

Start the stream worker. Records from the configured topics are run
through the pipeline and every lifecycle hook is reported to the
configured metrics backend.

Options:`)
	configPath := fs.String("config", "", "Path to configuration file")
	brokers := fs.String("brokers", "", "Override Kafka seed brokers (comma-separated)")
	topics := fs.String("topics", "", "Override source topics (comma-separated)")
	backend := fs.String("backend", "", "Override metrics backend (datadog, prometheus, none)")
	statsdHost := fs.String("statsd-host", "", "Override dogstatsd agent host")
	workerID := fs.String("worker-id", "", "Override worker ID (default: auto-generated UUID)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Apply CLI overrides
	if *brokers != "" {
		cfg.Kafka.Brokers = splitList(*brokers)
	}
	if *topics != "" {
		cfg.Kafka.Topics = splitList(*topics)
	}
	if *backend != "" {
		cfg.Observability.Backend = *backend
	}
	if *statsdHost != "" {
		cfg.Statsd.Host = *statsdHost
	}

	// Set up logger
	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	// Build worker options
	workerOpts := WorkerOptions{
		Config:    cfg,
		Logger:    logger,
		Version:   version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
	}

	// Set worker ID
	if *workerID != "" {
		workerOpts.WorkerID = *workerID
	} else {
		workerOpts.WorkerID = uuid.New().String()
	}

	// Create and run worker
	worker, err := NewWorker(workerOpts)
	if err != nil {
		logger.Errorf("failed to create worker", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the worker
	errCh := make(chan error, 1)
	go func() {
		errCh <- worker.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.Infof("received shutdown signal", map[string]any{"signal": sig.String()})
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Errorf("worker error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := worker.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	logger.Info("worker shutdown complete")
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
