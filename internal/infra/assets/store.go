// Package assets implements the local weight-file cache. A style's ONNX
// file is downloaded from the remote model host the first time it is
// resolved and served from disk ever after.
//
// A file present at the expected path is trusted as-is: there is no
// checksum or freshness check and it is never re-fetched implicitly.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/painter/internal/domain"
	"github.com/tutu-network/painter/internal/infra/catalog"
	"github.com/tutu-network/painter/internal/infra/metrics"
	"github.com/tutu-network/painter/internal/infra/sqlite"
)

const userAgent = "painter/0.1.0"

// Store implements domain.AssetResolver over a local directory.
// Metadata about fetched files is tracked in SQLite when db is non-nil.
type Store struct {
	dir     string
	catalog *catalog.Catalog
	db      *sqlite.DB
	baseURL string
	client  HTTPClient
	logger  *zap.Logger
}

var _ domain.AssetResolver = (*Store)(nil)

// NewStore creates a Store rooted at dir serving the styles in cat.
func NewStore(dir string, cat *catalog.Catalog, db *sqlite.DB, opts ...Option) *Store {
	s := &Store{
		dir:     dir,
		catalog: cat,
		db:      db,
		baseURL: catalog.DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultRequestTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Styles returns the enabled styles in catalog order.
func (s *Store) Styles() []domain.Style { return s.catalog.Styles() }

// Path returns where a style's weight file lives (whether or not it exists).
func (s *Store) Path(style domain.Style) string {
	return filepath.Join(s.dir, string(style)+".onnx")
}

// HasLocal reports whether the style's weight file is already on disk.
func (s *Store) HasLocal(style domain.Style) bool {
	_, err := os.Stat(s.Path(style))
	return err == nil
}

// Resolve returns the local path for a style's weights, downloading them
// on a cache miss. Fails with domain.ErrUnknownStyle for names outside
// the catalog and domain.ErrAssetFetch when the download fails.
func (s *Store) Resolve(ctx context.Context, name string) (string, error) {
	entry, err := s.catalog.Lookup(name)
	if err != nil {
		return "", err
	}

	path := s.Path(entry.Style)
	if s.HasLocal(entry.Style) {
		s.touch(entry.Style)
		return path, nil
	}

	if err := s.fetch(ctx, entry, nil); err != nil {
		return "", fmt.Errorf("resolve %s: %w", entry.Style, err)
	}
	return path, nil
}

// Pull downloads a style's weights ahead of time. Without force an
// existing file is left untouched.
func (s *Store) Pull(ctx context.Context, name string, force bool, progress ProgressFunc) error {
	entry, err := s.catalog.Lookup(name)
	if err != nil {
		return err
	}

	if progress != nil {
		progress("resolving "+string(entry.Style), 0)
	}

	if !force && s.HasLocal(entry.Style) {
		if progress != nil {
			progress("already exists", 100)
		}
		return nil
	}

	if err := s.fetch(ctx, entry, progress); err != nil {
		return fmt.Errorf("pull %s: %w", entry.Style, err)
	}

	if progress != nil {
		progress("done", 100)
	}
	return nil
}

// List returns the state of every enabled style's asset.
func (s *Store) List() ([]domain.AssetInfo, error) {
	entries := s.catalog.Entries()
	out := make([]domain.AssetInfo, 0, len(entries))
	for _, e := range entries {
		info := domain.AssetInfo{
			Style: e.Style,
			File:  e.File,
			URL:   e.URL(s.baseURL),
			Path:  s.Path(e.Style),
		}
		if s.db != nil {
			rec, err := s.db.GetAsset(e.Style)
			if err != nil {
				return nil, fmt.Errorf("query asset %s: %w", e.Style, err)
			}
			if rec != nil {
				info.Digest = rec.Digest
				info.FetchedAt = rec.FetchedAt
				info.LastUsed = rec.LastUsed
			}
		}
		if stat, err := os.Stat(info.Path); err == nil {
			info.Local = true
			info.SizeBytes = stat.Size()
		}
		out = append(out, info)
	}
	return out, nil
}

// Remove deletes a style's local weights and metadata.
func (s *Store) Remove(name string) error {
	entry, err := s.catalog.Lookup(name)
	if err != nil {
		return err
	}

	removed := false
	if err := os.Remove(s.Path(entry.Style)); err == nil {
		removed = true
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", entry.Style, err)
	}

	if s.db != nil {
		err := s.db.DeleteAsset(entry.Style)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, domain.ErrAssetNotFound):
			return fmt.Errorf("delete asset record: %w", err)
		}
	}

	if !removed {
		return fmt.Errorf("%s: %w", entry.Style, domain.ErrAssetNotFound)
	}
	s.logger.Info("asset removed", zap.String("style", string(entry.Style)))
	return nil
}

// fetch streams the remote file into a temp file next to the final path
// and renames it into place, so a failed download never leaves a file
// where Resolve would trust it.
func (s *Store) fetch(ctx context.Context, e catalog.Entry, progress ProgressFunc) (err error) {
	style := string(e.Style)
	url := e.URL(s.baseURL)
	start := time.Now()

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			s.logger.Warn("asset fetch failed", zap.String("style", style), zap.String("url", url), zap.Error(err))
		}
		metrics.AssetFetches.WithLabelValues(style, result).Inc()
	}()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}

	s.logger.Info("fetching asset", zap.String("style", style), zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAssetFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d from %s", domain.ErrAssetFetch, resp.StatusCode, url)
	}

	total := e.SizeBytes
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	tmp, err := os.CreateTemp(s.dir, ".download-"+style+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	hasher := sha256.New()
	pw := &progressWriter{total: total, fn: progress}
	n, copyErr := io.Copy(io.MultiWriter(tmp, hasher, pw), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return fmt.Errorf("%w: download interrupted: %w", domain.ErrAssetFetch, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("write %s: %w", tmpPath, closeErr)
	}
	if n == 0 {
		return fmt.Errorf("%w: empty body from %s", domain.ErrAssetFetch, url)
	}

	if progress != nil {
		progress("verifying download", 99)
	}

	path := s.Path(e.Style)
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("move asset into place: %w", err)
	}
	metrics.AssetFetchBytes.Add(float64(n))

	s.logger.Info("asset cached",
		zap.String("style", style),
		zap.String("size", domain.HumanSize(n)),
		zap.Duration("took", time.Since(start)),
	)

	if s.db != nil {
		now := time.Now()
		info := domain.AssetInfo{
			Style:     e.Style,
			Path:      path,
			SizeBytes: n,
			Digest:    "sha256:" + hex.EncodeToString(hasher.Sum(nil)),
			FetchedAt: now,
			LastUsed:  now,
		}
		if err := s.db.UpsertAsset(info); err != nil {
			// The file is in place and usable; metadata is advisory.
			s.logger.Warn("record asset metadata", zap.String("style", style), zap.Error(err))
		}
	}
	return nil
}

func (s *Store) touch(style domain.Style) {
	if s.db == nil {
		return
	}
	if err := s.db.TouchAsset(style); err != nil {
		s.logger.Debug("touch asset", zap.String("style", string(style)), zap.Error(err))
	}
}

// progressWriter reports cumulative bytes to a ProgressFunc.
type progressWriter struct {
	total   int64
	written int64
	fn      ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.fn != nil && w.total > 0 {
		pct := float64(w.written) / float64(w.total) * 100
		if pct > 98 {
			pct = 98
		}
		w.fn(fmt.Sprintf("downloading %s / %s", domain.HumanSize(w.written), domain.HumanSize(w.total)), pct)
	}
	return len(p), nil
}
