// Command fragmentd serves the fragment host over HTTP. It wires the
// configured resolution log store, blob store, and telemetry sinks around a
// core service, installs the built-in plugins, and exposes the fragments API
// together with optional /metrics and /debug/vars endpoints.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fragmentcore/docs/schema"
	"fragmentcore/internal/adapters/exports"
	"fragmentcore/internal/blob"
	"fragmentcore/internal/config"
	"fragmentcore/internal/core"
	"fragmentcore/pkg/filing"
	"fragmentcore/plugins/fecfile"
)

const (
	version = "0.1.0"

	filingTimeout   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fragmentd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fragmentd", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	showVersion := fs.Bool("version", false, "print the build version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println("fragmentd " + version)
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, configFile, err := config.Load()
	if err != nil {
		return err
	}
	catalogVersion, err := schema.CatalogVersion()
	if err != nil {
		return fmt.Errorf("schema catalog: %w", err)
	}
	logger.Info("starting fragmentd",
		"version", version,
		"catalog_version", catalogVersion,
		"config_file", configFile,
		"storage_driver", cfg.Storage.Driver,
		"blob_driver", cfg.Blob.Driver,
		"addr", cfg.HTTP.Addr,
	)

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Warn("close", "error", err)
		}
	}()

	return app.serve(ctx)
}

// app holds the assembled server so tests can exercise the full wiring
// without binding a listener.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	service *core.Service
	worker  *exports.Worker
	mux     *http.ServeMux
	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	engine := core.NewDefaultRulesEngine()
	store, err := openStore(cfg.Storage, engine)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: filingTimeout}
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithHTTPClient(client),
		core.WithAuditRecorder(auditLog{log: logger}),
	}

	var prom *core.PrometheusMetricsRecorder
	var recorders []core.MetricsRecorder
	if cfg.Telemetry.Prometheus {
		prom = core.NewPrometheusMetricsRecorder("fragmentcore")
		recorders = append(recorders, prom)
	}
	if cfg.Telemetry.Expvar {
		recorders = append(recorders, core.NewExpvarMetricsRecorder(""))
	}
	if len(recorders) > 0 {
		opts = append(opts, core.WithMetricsRecorder(multiRecorder(recorders)))
	}
	if cfg.Telemetry.TracePath != "" {
		file, err := os.OpenFile(cfg.Telemetry.TracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) // #nosec G304 -- operator-supplied trace path
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, file.Close)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(file)))
	}

	a.service = core.NewService(store, opts...)

	source := filing.NewHTTPSource(client, "")
	if _, err := a.service.InstallPlugin(ctx, fecfile.New(source)); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("install fecfile plugin: %w", err)
	}

	blobStore, err := openBlob(ctx, cfg.Blob)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.worker = exports.NewWorker(a.service, exports.NewBlobObjectStore(blobStore, "exports"), exportAuditLog{log: logger})
	a.worker.Start()

	handler := exports.NewHandler(a.service)
	handler.Exports = a.worker

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if prom != nil {
		mux.Handle("/metrics", prom.Handler())
	}
	if cfg.Telemetry.Expvar {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	a.mux = mux
	return a, nil
}

// serve runs the HTTP listener until the context is canceled or a signal
// arrives, then drains in-flight requests.
func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("fragmentd listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

// Close stops the export worker, releases the store, and runs deferred
// cleanups in construction order.
func (a *app) Close(ctx context.Context) error {
	var firstErr error
	if a.worker != nil {
		if err := a.worker.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.service != nil {
		if err := a.service.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, closer := range a.closers {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openStore(cfg config.StorageConfig, engine *core.RulesEngine) (core.PersistentStore, error) {
	switch cfg.Driver {
	case "memory":
		return core.NewMemoryStore(engine), nil
	case "sqlite":
		return core.NewSQLiteStore(cfg.SQLitePath, engine)
	case "postgres":
		return core.NewPostgresStore(cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

func openBlob(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch cfg.Driver {
	case "fs":
		return blob.NewFilesystem(cfg.Dir)
	case "s3":
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	case "memory":
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// multiRecorder fans operation observations out to every configured sink.
type multiRecorder []core.MetricsRecorder

func (m multiRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, recorder := range m {
		recorder.Observe(ctx, operation, success, duration)
	}
}

// auditLog forwards service audit entries to the structured log.
type auditLog struct{ log *slog.Logger }

func (a auditLog) Record(_ context.Context, entry core.AuditEntry) {
	a.log.Info("audit",
		"operation", entry.Operation,
		"entity", string(entry.Entity),
		"action", string(entry.Action),
		"entity_id", entry.EntityID,
		"status", string(entry.Status),
		"duration_ms", entry.Duration.Milliseconds(),
	)
}

// exportAuditLog forwards export worker audit entries to the structured log.
type exportAuditLog struct{ log *slog.Logger }

func (a exportAuditLog) Record(_ context.Context, entry exports.AuditEntry) {
	a.log.Info("export audit",
		"id", entry.ID,
		"action", entry.Action,
		"actor", entry.Actor,
		"status", string(entry.Status),
		"reason", entry.Reason,
	)
}
