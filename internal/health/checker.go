// Package health provides periodic health checks with auto-recovery.
// The standard checks (sqlite, models_dir, weights) run every 60 seconds.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/painter/internal/infra/assets"
	"github.com/tutu-network/painter/internal/infra/metrics"
	"github.com/tutu-network/painter/internal/infra/sqlite"
)

// DefaultInterval is how often Run repeats the checks.
const DefaultInterval = 60 * time.Second

// StaleDownloadAge is how long a download temp file may go unwritten
// before it counts as abandoned. A live download cannot outlast the
// store's request timeout.
const StaleDownloadAge = assets.DefaultRequestTimeout

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	logger   *zap.Logger
}

// NewChecker creates a health checker with the standard checks. logger may be nil.
func NewChecker(db *sqlite.DB, modelsDir string, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		interval: DefaultInterval,
		logger:   logger,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "models_dir",
				CheckFn: func(ctx context.Context) error {
					return checkModelsDir(modelsDir)
				},
			},
			{
				Name: "weights",
				CheckFn: func(ctx context.Context) error {
					bad, err := brokenWeights(modelsDir, time.Now())
					if err != nil {
						return err
					}
					if len(bad) > 0 {
						return fmt.Errorf("%d broken weight files: %s", len(bad), strings.Join(bad, ", "))
					}
					return nil
				},
				// Broken files are removed so the next resolve downloads them again.
				RecoverFn: func(ctx context.Context) error {
					bad, err := brokenWeights(modelsDir, time.Now())
					if err != nil {
						return err
					}
					for _, name := range bad {
						if err := os.Remove(filepath.Join(modelsDir, name)); err != nil && !os.IsNotExist(err) {
							return err
						}
					}
					return nil
				},
			},
		},
	}
}

// AddCheck registers an extra check. Call before Run.
func (c *Checker) AddCheck(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// BackendCheck fails while the daemon serves mock output because the
// configured backend could not start.
func BackendCheck(configured, active string) Check {
	return Check{
		Name: "inference_backend",
		CheckFn: func(ctx context.Context) error {
			if active == "mock" && !strings.EqualFold(configured, "mock") {
				return fmt.Errorf("backend %q unavailable, serving mock output", configured)
			}
			return nil
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	c.mu.RLock()
	checks := slices.Clone(c.checks)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
			Healthy:   true,
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			c.logger.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			if check.RecoverFn != nil {
				if rerr := check.RecoverFn(ctx); rerr != nil {
					c.logger.Error("health recovery failed", zap.String("check", check.Name), zap.Error(rerr))
				}
			}
		}
		statuses[i] = s

		v := 0.0
		if s.Healthy {
			v = 1
		}
		metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(v)
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkModelsDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // created on first download
		}
		return fmt.Errorf("check models dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("models path %s is not a directory", dir)
	}
	return nil
}

// brokenWeights lists empty .onnx files and download temp files not
// written to since now-StaleDownloadAge. Temp files of running downloads
// are left alone.
func brokenWeights(dir string, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read models dir: %w", err)
	}

	var bad []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasPrefix(name, ".download-") && strings.HasSuffix(name, ".tmp"):
			info, err := e.Info()
			if err != nil {
				continue // finished or removed since ReadDir
			}
			if now.Sub(info.ModTime()) > StaleDownloadAge {
				bad = append(bad, name)
			}
		case strings.HasSuffix(name, ".onnx"):
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.Size() == 0 {
				bad = append(bad, name)
			}
		}
	}
	return bad, nil
}
