// Package sqlite provides SQLite-based persistent storage for painter.
// It keeps asset metadata and the transform history next to the weight
// cache. Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/tutu-network/painter/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS assets (
			style      TEXT PRIMARY KEY,
			path       TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			digest     TEXT NOT NULL DEFAULT '',
			fetched_at INTEGER NOT NULL,
			last_used  INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS transforms (
			id          TEXT PRIMARY KEY,
			style       TEXT NOT NULL,
			in_width    INTEGER NOT NULL DEFAULT 0,
			in_height   INTEGER NOT NULL DEFAULT 0,
			out_width   INTEGER NOT NULL DEFAULT 0,
			out_height  INTEGER NOT NULL DEFAULT 0,
			out_bytes   INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transforms_created ON transforms(created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Asset Repository ───────────────────────────────────────────────────────

// UpsertAsset inserts or updates the metadata row for a fetched asset.
func (d *DB) UpsertAsset(info domain.AssetInfo) error {
	_, err := d.db.Exec(
		`INSERT INTO assets (style, path, size_bytes, digest, fetched_at, last_used)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(style) DO UPDATE SET
			path=excluded.path,
			size_bytes=excluded.size_bytes,
			digest=excluded.digest,
			fetched_at=excluded.fetched_at,
			last_used=excluded.last_used`,
		string(info.Style), info.Path, info.SizeBytes, info.Digest,
		info.FetchedAt.Unix(), nullableUnix(info.LastUsed),
	)
	return err
}

// GetAsset retrieves the metadata row for a style. Returns nil, nil when absent.
func (d *DB) GetAsset(style domain.Style) (*domain.AssetInfo, error) {
	row := d.db.QueryRow(
		`SELECT style, path, size_bytes, digest, fetched_at, last_used
		 FROM assets WHERE style = ?`, string(style),
	)
	return scanAsset(row)
}

// ListAssets returns all asset rows ordered by style.
func (d *DB) ListAssets() ([]domain.AssetInfo, error) {
	rows, err := d.db.Query(
		`SELECT style, path, size_bytes, digest, fetched_at, last_used
		 FROM assets ORDER BY style`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.AssetInfo
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// DeleteAsset removes an asset row.
func (d *DB) DeleteAsset(style domain.Style) error {
	result, err := d.db.Exec(`DELETE FROM assets WHERE style = ?`, string(style))
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

// TouchAsset updates the last_used timestamp.
func (d *DB) TouchAsset(style domain.Style) error {
	_, err := d.db.Exec(
		`UPDATE assets SET last_used = ? WHERE style = ?`,
		time.Now().Unix(), string(style),
	)
	return err
}

// ─── Transform History ──────────────────────────────────────────────────────

// InsertTransform appends one record to the transform history.
func (d *DB) InsertTransform(rec domain.TransformRecord) error {
	_, err := d.db.Exec(
		`INSERT INTO transforms (id, style, in_width, in_height, out_width, out_height,
			out_bytes, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Style), rec.InWidth, rec.InHeight, rec.OutWidth, rec.OutHeight,
		rec.OutBytes, rec.Duration.Milliseconds(), rec.Error, rec.CreatedAt.UnixMilli(),
	)
	return err
}

// ListTransforms returns the most recent records first. limit <= 0 means 50.
func (d *DB) ListTransforms(limit int) ([]domain.TransformRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT id, style, in_width, in_height, out_width, out_height,
			out_bytes, duration_ms, error, created_at
		 FROM transforms ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransformRecord
	for rows.Next() {
		var rec domain.TransformRecord
		var style string
		var durationMs, createdAt int64
		if err := rows.Scan(&rec.ID, &style, &rec.InWidth, &rec.InHeight,
			&rec.OutWidth, &rec.OutHeight, &rec.OutBytes, &durationMs,
			&rec.Error, &createdAt); err != nil {
			return nil, err
		}
		rec.Style = domain.Style(style)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(s scanner) (*domain.AssetInfo, error) {
	var a domain.AssetInfo
	var style string
	var fetchedAt int64
	var lastUsed sql.NullInt64

	err := s.Scan(&style, &a.Path, &a.SizeBytes, &a.Digest, &fetchedAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}

	a.Style = domain.Style(style)
	a.FetchedAt = time.Unix(fetchedAt, 0)
	if lastUsed.Valid {
		a.LastUsed = time.Unix(lastUsed.Int64, 0)
	}
	return &a, nil
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
