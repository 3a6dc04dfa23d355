// Package onnx runs style models with ONNX Runtime through
// github.com/yalue/onnxruntime_go. The runtime shared library is loaded
// once per process; each handle owns one session with preallocated
// input and output tensors.
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/tutu-network/painter/internal/domain"
	"github.com/tutu-network/painter/internal/infra/engine"
)

// Backend implements engine.InferenceBackend on ONNX Runtime.
type Backend struct {
	logger *zap.Logger
}

var _ engine.InferenceBackend = (*Backend)(nil)

// NewBackend initializes the ONNX Runtime environment. libPath points at
// the onnxruntime shared library; empty uses the platform default name.
func NewBackend(libPath string, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	logger.Info("onnxruntime initialized", zap.String("lib", libPath))
	return &Backend{logger: logger}, nil
}

func (b *Backend) Name() string { return "onnxruntime" }

// Close tears down the runtime environment. Call after every handle is closed.
func (b *Backend) Close() {
	if err := ort.DestroyEnvironment(); err != nil {
		b.logger.Warn("destroy onnxruntime environment", zap.Error(err))
	}
}

// LoadModel opens a session for the model at path.
func (b *Backend) LoadModel(path string, opts engine.LoadOptions) (engine.ModelHandle, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no inputs or outputs", path)
	}
	in, out := inputs[0], outputs[0]

	inShape := concreteShape(in.Dimensions)
	outShape := concreteShape(out.Dimensions)
	if len(inShape) != 4 || inShape[1] != 3 || len(outShape) != 4 || outShape[1] != 3 {
		return nil, fmt.Errorf("model %s: want NCHW RGB tensors, got input %v output %v", path, in.Dimensions, out.Dimensions)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer sessOpts.Destroy()

	if opts.Threads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.Threads); err != nil {
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}
	if opts.Device == engine.DeviceCUDA {
		if err := appendCUDA(sessOpts); err != nil {
			b.logger.Warn("CUDA execution provider unavailable, using CPU", zap.String("model", path), zap.Error(err))
		}
	}

	inTensor, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	outTensor, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		inTensor.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{in.Name}, []string{out.Name},
		[]ort.Value{inTensor}, []ort.Value{outTensor},
		sessOpts,
	)
	if err != nil {
		inTensor.Destroy()
		outTensor.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &handle{
		session: session,
		input:   inTensor,
		output:  outTensor,
		inW:     int(inShape[3]),
		inH:     int(inShape[2]),
		outW:    int(outShape[3]),
		outH:    int(outShape[2]),
	}, nil
}

func appendCUDA(opts *ort.SessionOptions) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOpts.Destroy()
	return opts.AppendExecutionProviderCUDA(cudaOpts)
}

// concreteShape replaces symbolic (-1) dimensions: batch becomes 1,
// channels 3 and spatial dims the default model resolution.
func concreteShape(dims ort.Shape) ort.Shape {
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d > 0 {
			out[i] = d
			continue
		}
		switch i {
		case 0:
			out[i] = 1
		case 1:
			out[i] = 3
		default:
			out[i] = engine.DefaultInputSize
		}
	}
	return out
}

// handle serializes Run because the session's tensors are shared.
type handle struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	inW, inH   int
	outW, outH int
}

func (h *handle) InputSize() (int, int)  { return h.inW, h.inH }
func (h *handle) OutputSize() (int, int) { return h.outW, h.outH }

func (h *handle) Run(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session == nil {
		return nil, fmt.Errorf("model is closed")
	}
	dst := h.input.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("%w: input has %d values, want %d", domain.ErrInference, len(input), len(dst))
	}
	copy(dst, input)

	if err := h.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}

	src := h.output.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

func (h *handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return
	}
	h.session.Destroy()
	h.input.Destroy()
	h.output.Destroy()
	h.session = nil
}
