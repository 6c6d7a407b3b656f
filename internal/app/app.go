// Package app assembles a Service and its collaborators from configuration.
// The CLI, HTTP server and terminal wizard all start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"configforge/internal/assistant"
	"configforge/internal/blob"
	"configforge/internal/catalog"
	"configforge/internal/config"
	"configforge/internal/core"
	"configforge/internal/logging"
	"configforge/internal/telemetry"
	"configforge/pkg/domain"
)

// App holds a running service and the resources it owns.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Service  *core.Service
	Catalog  *catalog.Catalog
	Registry *prometheus.Registry
	Expvar   *core.ExpvarMetricsRecorder
	// TracerProvider is nil unless a trace exporter is configured.
	TracerProvider *sdktrace.TracerProvider

	snapshots domain.SnapshotStore
}

// Option adjusts construction, mostly for tests.
type Option func(*options)

type options struct {
	logOutput io.Writer
	assistant assistant.Client
	blobs     blob.Store
}

// WithLogOutput redirects logs and traces.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithAssistantClient bypasses the configured assistant mode.
func WithAssistantClient(client assistant.Client) Option {
	return func(o *options) { o.assistant = client }
}

// WithBlobStore bypasses the configured blob driver.
func WithBlobStore(store blob.Store) Option {
	return func(o *options) { o.blobs = store }
}

// New builds the application from cfg.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: o.logOutput})
	if err != nil {
		return nil, err
	}

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	snapshots, err := core.OpenSnapshotStore(ctx, core.StorageOptions{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	store, err := core.NewConfigStore(ctx, cat,
		core.WithSnapshotStore(snapshots),
		core.WithStoreLogger(logger),
	)
	if err != nil {
		_ = snapshots.Close()
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	blobs := o.blobs
	if blobs == nil {
		blobs, err = blob.OpenWith(ctx, blob.Options{
			Driver: blob.Driver(cfg.Blob.Driver),
			FSRoot: cfg.Blob.FSRoot,
			S3: blob.S3Config{
				Bucket:    cfg.Blob.S3.Bucket,
				Region:    cfg.Blob.S3.Region,
				Endpoint:  cfg.Blob.S3.Endpoint,
				PathStyle: cfg.Blob.S3.PathStyle,
			},
		})
		if err != nil {
			_ = snapshots.Close()
			return nil, fmt.Errorf("open blob store: %w", err)
		}
	}

	client := o.assistant
	if client == nil {
		client, err = newAssistant(cfg.Assistant, logger)
		if err != nil {
			_ = snapshots.Close()
			return nil, err
		}
	}
	if client != nil {
		client = assistant.NewRateLimitedClient(client, cfg.Assistant.RateLimit)
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		Writer:       o.logOutput,
	})
	if err != nil {
		_ = snapshots.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	expvarRec := core.NewExpvarMetricsRecorder("")

	serviceOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{expvarRec, core.NewPrometheusMetricsRecorder(registry)}),
		core.WithAuditRecorder(core.LoggerAuditRecorder{Logger: logger}),
		core.WithBlobStore(blobs),
	}
	if cfg.Blob.Prefix != "" {
		serviceOpts = append(serviceOpts, core.WithExportPrefix(cfg.Blob.Prefix))
	}
	if client != nil {
		serviceOpts = append(serviceOpts, core.WithAssistant(client))
	}
	var tracers core.MultiTracer
	if cfg.Log.Trace {
		tracers = append(tracers, core.NewJSONTracer(o.logOutput))
	}
	if tp != nil {
		tracers = append(tracers, core.NewOTelTracer(tp))
	}
	if len(tracers) > 0 {
		serviceOpts = append(serviceOpts, core.WithTracer(tracers))
	}

	logger.Debug("application ready",
		"storage", cfg.Storage.Driver,
		"blob", blobs.Driver(),
		"assistant", cfg.Assistant.Mode,
		"assistant_configured", client != nil,
		"trace_exporter", cfg.Telemetry.Exporter,
	)
	return &App{
		Config:    cfg,
		Logger:    logger,
		Service:   core.NewService(store, serviceOpts...),
		Catalog:   cat,
		Registry:  registry,
		Expvar:    expvarRec,
		snapshots: snapshots,

		TracerProvider: tp,
	}, nil
}

// Close flushes traces and releases the snapshot store.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.TracerProvider != nil {
		if err := a.TracerProvider.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

// newAssistant returns nil without error when the assistant is disabled, and
// Ask then reports the assistant as unavailable. Without an API key the
// returned client fails every request with ErrMissingCredential.
func newAssistant(cfg config.AssistantConfig, logger *slog.Logger) (assistant.Client, error) {
	switch cfg.Mode {
	case config.AssistantOff:
		return nil, nil
	case config.AssistantStatic:
		return assistant.NewStaticClient(), nil
	}
	client, err := assistant.NewOpenAIClient(assistant.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}, logger)
	if errors.Is(err, assistant.ErrMissingCredential) {
		logger.Warn("assistant API key not set, assistant disabled")
		return assistant.MissingCredentialClient{Hint: "CONFIGFORGE_ASSISTANT_API_KEY"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}
	return client, nil
}
