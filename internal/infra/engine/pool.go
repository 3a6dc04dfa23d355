// Package engine provides the inference backend abstraction and the
// per-style model handle registry. The actual ONNX Runtime backend lives
// in engine/onnx behind the InferenceBackend interface, allowing clean
// testing with the mock implementation.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tutu-network/painter/internal/domain"
	"github.com/tutu-network/painter/internal/infra/metrics"
)

// DefaultInputSize is the square resolution the fast-neural-style models expect.
const DefaultInputSize = 224

// ─── InferenceBackend Interface ─────────────────────────────────────────────

// InferenceBackend is the low-level model loading interface.
type InferenceBackend interface {
	Name() string
	LoadModel(path string, opts LoadOptions) (ModelHandle, error)
	Close()
}

// ModelHandle is one loaded model. Run takes and returns a float32 NCHW
// tensor (batch 1, RGB channels) flattened in row-major order.
type ModelHandle interface {
	InputSize() (width, height int)
	OutputSize() (width, height int)
	Run(ctx context.Context, input []float32) ([]float32, error)
	Close()
}

// Device selects the execution provider.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// ParseDevice accepts "cpu" or "cuda" (case-insensitive).
func ParseDevice(s string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceCPU, "":
		return DeviceCPU, nil
	case DeviceCUDA:
		return DeviceCUDA, nil
	default:
		return "", fmt.Errorf("unknown device %q (want cpu or cuda)", s)
	}
}

// LoadOptions configures model loading.
type LoadOptions struct {
	Device  Device
	Threads int // 0 = runtime default
}

// Resolver maps a style name to a local weight file.
type Resolver func(ctx context.Context, name string) (string, error)

// ─── Model Pool ─────────────────────────────────────────────────────────────
// One handle per style, created on first use and kept until UnloadAll.
// There is no eviction: the style set is small and fixed, so the pool
// is bounded by the catalog size.

// Pool owns the loaded model handles for a service instance.
type Pool struct {
	mu       sync.Mutex
	models   map[domain.Style]*poolEntry
	backend  InferenceBackend
	resolver Resolver
	opts     LoadOptions
	loads    singleflight.Group
	logger   *zap.Logger
}

type poolEntry struct {
	handle   ModelHandle
	style    domain.Style
	path     string
	loadedAt time.Time
	lastUsed time.Time
	uses     int64
}

// NewPool creates an empty pool. logger may be nil.
func NewPool(backend InferenceBackend, resolver Resolver, opts LoadOptions, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Device == "" {
		opts.Device = DeviceCPU
	}
	return &Pool{
		models:   make(map[domain.Style]*poolEntry),
		backend:  backend,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
	}
}

// Backend returns the name of the inference backend.
func (p *Pool) Backend() string { return p.backend.Name() }

// Acquire returns the handle for style, resolving and loading it on first
// use. Concurrent first uses of the same style share a single load.
func (p *Pool) Acquire(ctx context.Context, style domain.Style) (ModelHandle, error) {
	if h, ok := p.lookup(style); ok {
		return h, nil
	}

	// The load outlives the request that triggered it: other callers may
	// be waiting on the same flight.
	loadCtx := context.WithoutCancel(ctx)
	ch := p.loads.DoChan(string(style), func() (any, error) {
		if h, ok := p.lookup(style); ok {
			return h, nil
		}
		return p.load(loadCtx, style)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(ModelHandle), nil
	}
}

func (p *Pool) lookup(style domain.Style) (ModelHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.models[style]
	if !ok {
		return nil, false
	}
	entry.lastUsed = time.Now()
	entry.uses++
	return entry.handle, true
}

func (p *Pool) load(ctx context.Context, style domain.Style) (ModelHandle, error) {
	start := time.Now()

	path, err := p.resolver(ctx, string(style))
	if err != nil {
		return nil, fmt.Errorf("resolve model %q: %w", style, err)
	}

	handle, err := p.backend.LoadModel(path, p.opts)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w: %w", style, domain.ErrModelLoad, err)
	}

	now := time.Now()
	entry := &poolEntry{
		handle:   handle,
		style:    style,
		path:     path,
		loadedAt: now,
		lastUsed: now,
		uses:     1,
	}

	p.mu.Lock()
	p.models[style] = entry
	n := len(p.models)
	p.mu.Unlock()

	metrics.ModelsLoaded.Set(float64(n))
	metrics.ModelLoadLatency.WithLabelValues(string(style)).Observe(time.Since(start).Seconds())
	p.logger.Info("model loaded",
		zap.String("style", string(style)),
		zap.String("backend", p.backend.Name()),
		zap.String("device", string(p.opts.Device)),
		zap.Duration("took", time.Since(start)),
	)
	return handle, nil
}

// LoadedModels returns info about all models currently in the pool.
func (p *Pool) LoadedModels() []domain.LoadedModel {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]domain.LoadedModel, 0, len(p.models))
	for _, entry := range p.models {
		result = append(result, domain.LoadedModel{
			Style:    entry.style,
			Path:     entry.path,
			Device:   string(p.opts.Device),
			LoadedAt: entry.loadedAt,
			LastUsed: entry.lastUsed,
			Uses:     entry.uses,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Style < result[j].Style })
	return result
}

// UnloadAll releases all models. Call only after in-flight requests finish.
func (p *Pool) UnloadAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for style, entry := range p.models {
		entry.handle.Close()
		delete(p.models, style)
	}
	metrics.ModelsLoaded.Set(0)
	return nil
}
