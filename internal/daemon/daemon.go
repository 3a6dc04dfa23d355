package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/painter/internal/api"
	"github.com/tutu-network/painter/internal/app/stylize"
	"github.com/tutu-network/painter/internal/domain"
	"github.com/tutu-network/painter/internal/form"
	"github.com/tutu-network/painter/internal/health"
	"github.com/tutu-network/painter/internal/infra/assets"
	"github.com/tutu-network/painter/internal/infra/catalog"
	"github.com/tutu-network/painter/internal/infra/engine"
	"github.com/tutu-network/painter/internal/infra/engine/onnx"
	"github.com/tutu-network/painter/internal/infra/sqlite"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

// Daemon is the painter backend runtime. It wires together all services.
type Daemon struct {
	Config  Config
	Logger  *zap.Logger
	DB      *sqlite.DB
	Assets  *assets.Store
	Pool    *engine.Pool
	Service *stylize.Service
	Server  *api.Server
	Health  *health.Checker
	backend engine.InferenceBackend
	cancel  context.CancelFunc
}

// New loads the configuration and creates a Daemon.
func New(logger *zap.Logger) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, logger)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, logger *zap.Logger) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sqlite.Open(Home())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cat, err := catalog.Default().Only(cfg.Models.Styles...)
	if err != nil {
		db.Close()
		return nil, err
	}
	store := assets.NewStore(cfg.Models.Dir, cat, db,
		assets.WithBaseURL(cfg.Models.BaseURL),
		assets.WithLogger(logger.Named("assets")),
	)

	backend, err := newBackend(cfg.Inference, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	device, _ := engine.ParseDevice(cfg.Inference.Device)
	pool := engine.NewPool(backend, store.Resolve, engine.LoadOptions{
		Device:  device,
		Threads: cfg.Inference.Threads,
	}, logger.Named("engine"))

	svc := stylize.NewService(store, pool, db, stylize.Options{
		Scale:       cfg.Inference.ScaleFactor,
		JPEGQuality: cfg.Inference.JPEGQuality,
	}, logger.Named("stylize"))

	checker := health.NewChecker(db, cfg.Models.Dir, logger.Named("health"))
	checker.AddCheck(health.BackendCheck(cfg.Inference.Backend, pool.Backend()))

	srv := api.NewServer(svc, store, logger.Named("api"))
	srv.SetHealthChecker(checker)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Assets:  store,
		Pool:    pool,
		Service: svc,
		Server:  srv,
		Health:  checker,
		backend: backend,
	}, nil
}

// newBackend picks the inference backend. In auto mode a missing ONNX
// Runtime library falls back to the mock backend with a warning.
func newBackend(cfg InferenceConfig, logger *zap.Logger) (engine.InferenceBackend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "mock":
		return engine.NewMockBackend(), nil
	case "onnx":
		b, err := onnx.NewBackend(cfg.RuntimeLib, logger.Named("onnx"))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		b, err := onnx.NewBackend(cfg.RuntimeLib, logger.Named("onnx"))
		if err != nil {
			logger.Warn("ONNX Runtime not available, using mock backend (no real style transfer)",
				zap.Error(err),
				zap.String("hint", "install libonnxruntime or set ONNXRUNTIME_LIB"),
			)
			return engine.NewMockBackend(), nil
		}
		return b, nil
	}
}

// Serve starts the backend HTTP server and blocks until ctx is done or
// the process receives SIGINT/SIGTERM.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	go d.Health.Run(ctx)

	addr := d.Config.ServerAddr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // first use of a style downloads its weights
		IdleTimeout:  2 * time.Minute,
	}

	d.Logger.Info("painter serving",
		zap.String("addr", "http://"+addr),
		zap.String("backend", d.Pool.Backend()),
		zap.Strings("styles", domain.StyleNames(d.Service.ListStyles())),
		zap.Bool("metrics", d.Config.Telemetry.Prometheus),
	)

	err := listenAndServe(ctx, httpServer, d.Logger)
	// Handles are released only after in-flight requests have drained.
	_ = d.Pool.UnloadAll()
	return err
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Pool != nil {
		_ = d.Pool.UnloadAll()
	}
	if d.backend != nil {
		d.backend.Close()
		d.backend = nil
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// ServeForm runs the browser form against the configured backend until
// ctx is done or the process is signaled.
func ServeForm(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := form.NewClient(cfg.BackendURL())
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	srv, err := form.NewServer(startCtx, client, logger.Named("form"))
	cancel()
	if err != nil {
		return fmt.Errorf("contact backend at %s: %w", cfg.BackendURL(), err)
	}

	addr := cfg.FormAddr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: form.DefaultTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	logger.Info("form serving", zap.String("addr", "http://"+addr), zap.String("backend", cfg.BackendURL()))
	return listenAndServe(ctx, httpServer, logger)
}

// listenAndServe runs srv until ctx is done or a termination signal
// arrives, then shuts it down gracefully.
func listenAndServe(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.String("addr", srv.Addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
