// Package stylize implements the inference service: it lists the enabled
// styles and applies one of them to an uploaded image.
package stylize

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutu-network/painter/internal/domain"
	"github.com/tutu-network/painter/internal/infra/engine"
	"github.com/tutu-network/painter/internal/infra/metrics"
	"github.com/tutu-network/painter/internal/painter"
)

// Options tunes the output image.
type Options struct {
	Scale       float64 // output size relative to input, default 0.5
	JPEGQuality int     // 1-100, default 75
}

// Service transforms images. Safe for concurrent use.
type Service struct {
	assets  domain.AssetResolver
	pool    *engine.Pool
	history domain.HistoryStore // may be nil
	opts    Options
	logger  *zap.Logger
}

// NewService creates a service. The pool must resolve weights through
// assets; history and logger may be nil.
func NewService(assets domain.AssetResolver, pool *engine.Pool, history domain.HistoryStore, opts Options, logger *zap.Logger) *Service {
	if opts.Scale <= 0 {
		opts.Scale = painter.DefaultScale
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = painter.DefaultJPEGQuality
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		assets:  assets,
		pool:    pool,
		history: history,
		opts:    opts,
		logger:  logger,
	}
}

// ListStyles returns the enabled styles in catalog order.
func (s *Service) ListStyles() []domain.Style {
	return s.assets.Styles()
}

// Result is a finished transform.
type Result struct {
	ID     string
	Style  domain.Style
	Image  []byte // JPEG
	Width  int
	Height int
}

// Transform applies the named style to an encoded image and returns the
// JPEG result. The style is checked before anything else.
func (s *Service) Transform(ctx context.Context, name string, image []byte) ([]byte, error) {
	res, err := s.TransformDetailed(ctx, name, image)
	if err != nil {
		return nil, err
	}
	return res.Image, nil
}

// TransformDetailed is Transform with the output dimensions and history ID.
func (s *Service) TransformDetailed(ctx context.Context, name string, image []byte) (*Result, error) {
	style, err := s.Lookup(name)
	if err != nil {
		metrics.TransformFailures.WithLabelValues("unknown", "unknown_style").Inc()
		return nil, err
	}

	start := time.Now()
	rec := domain.TransformRecord{
		ID:        uuid.NewString(),
		Style:     style,
		CreatedAt: start,
	}

	res, err := s.run(ctx, style, image, &rec)
	rec.Duration = time.Since(start)

	if err != nil {
		reason := failureReason(err)
		rec.Error = err.Error()
		metrics.TransformFailures.WithLabelValues(string(style), reason).Inc()
		s.logger.Warn("transform failed",
			zap.String("id", rec.ID),
			zap.String("style", string(style)),
			zap.String("reason", reason),
			zap.Error(err),
		)
		s.record(rec)
		return nil, err
	}

	metrics.TransformsTotal.WithLabelValues(string(style)).Inc()
	metrics.TransformLatency.WithLabelValues(string(style)).Observe(rec.Duration.Seconds())
	s.logger.Debug("transform done",
		zap.String("id", rec.ID),
		zap.String("style", string(style)),
		zap.Int("in_width", rec.InWidth),
		zap.Int("in_height", rec.InHeight),
		zap.Int("out_bytes", len(res.Image)),
		zap.Duration("took", rec.Duration),
	)
	s.record(rec)

	res.ID = rec.ID
	return res, nil
}

// Lookup parses name and checks that the style is enabled.
func (s *Service) Lookup(name string) (domain.Style, error) {
	style, err := domain.ParseStyle(name)
	if err != nil {
		return "", err
	}
	if !slices.Contains(s.assets.Styles(), style) {
		return "", fmt.Errorf("%w: %q is not enabled", domain.ErrUnknownStyle, name)
	}
	return style, nil
}

func (s *Service) run(ctx context.Context, style domain.Style, data []byte, rec *domain.TransformRecord) (*Result, error) {
	img, _, err := painter.Decode(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	rec.InWidth, rec.InHeight = b.Dx(), b.Dy()

	handle, err := s.pool.Acquire(ctx, style)
	if err != nil {
		return nil, err
	}

	out, err := painter.New(handle, s.opts.Scale).Paint(ctx, img)
	if err != nil {
		if errors.Is(err, domain.ErrInference) || isContextErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}

	encoded, err := painter.EncodeJPEG(out, s.opts.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}

	ob := out.Bounds()
	rec.OutWidth, rec.OutHeight = ob.Dx(), ob.Dy()
	rec.OutBytes = int64(len(encoded))

	return &Result{
		Style:  style,
		Image:  encoded,
		Width:  ob.Dx(),
		Height: ob.Dy(),
	}, nil
}

// History returns the most recent transforms, newest first.
func (s *Service) History(limit int) ([]domain.TransformRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListTransforms(limit)
}

// Backend names the inference backend in use.
func (s *Service) Backend() string { return s.pool.Backend() }

// LoadedModels reports the handles currently held by the pool.
func (s *Service) LoadedModels() []domain.LoadedModel {
	return s.pool.LoadedModels()
}

func (s *Service) record(rec domain.TransformRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.InsertTransform(rec); err != nil {
		s.logger.Warn("record transform", zap.String("id", rec.ID), zap.Error(err))
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownStyle):
		return "unknown_style"
	case errors.Is(err, domain.ErrAssetFetch):
		return "asset_fetch"
	case errors.Is(err, domain.ErrModelLoad):
		return "model_load"
	case isContextErr(err):
		return "canceled"
	default:
		return "inference"
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
