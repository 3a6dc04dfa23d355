package engine

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/tutu-network/painter/internal/domain"
)

// ─── Mock Backend (for testing without the ONNX Runtime library) ────────────

// MockBackend implements InferenceBackend for testing. Its handles invert
// colors, which is enough to observe that a transform happened.
type MockBackend struct {
	loads atomic.Int64
}

func NewMockBackend() *MockBackend { return &MockBackend{} }

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) LoadModel(path string, opts LoadOptions) (ModelHandle, error) {
	if path == "" {
		return nil, fmt.Errorf("empty model path")
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("model file %s is empty", path)
	}
	m.loads.Add(1)
	return &MockModelHandle{path: path, size: DefaultInputSize}, nil
}

// Loads returns how many models this backend has loaded.
func (m *MockBackend) Loads() int64 { return m.loads.Load() }

func (m *MockBackend) Close() {}

// MockModelHandle implements ModelHandle for testing.
type MockModelHandle struct {
	path   string
	size   int
	closed atomic.Bool
}

func (h *MockModelHandle) InputSize() (int, int)  { return h.size, h.size }
func (h *MockModelHandle) OutputSize() (int, int) { return h.size, h.size }

func (h *MockModelHandle) Run(ctx context.Context, input []float32) ([]float32, error) {
	if h.closed.Load() {
		return nil, fmt.Errorf("model is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := 3 * h.size * h.size
	if len(input) != want {
		return nil, fmt.Errorf("%w: input has %d values, want %d", domain.ErrInference, len(input), want)
	}

	out := make([]float32, len(input))
	for i, v := range input {
		out[i] = 255 - v
	}
	return out, nil
}

func (h *MockModelHandle) Close() { h.closed.Store(true) }
