package domain

import (
	"time"

	"github.com/dustin/go-humanize"
)

// AssetInfo describes the local state of one style's weight file.
type AssetInfo struct {
	Style     Style     `json:"style"`
	File      string    `json:"file"`
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	Local     bool      `json:"local"`
	SizeBytes int64     `json:"size_bytes"`
	Digest    string    `json:"digest,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	LastUsed  time.Time `json:"last_used,omitempty"`
}

// LoadedModel is a handle currently held by the inference pool.
type LoadedModel struct {
	Style    Style     `json:"style"`
	Path     string    `json:"path"`
	Device   string    `json:"device"`
	LoadedAt time.Time `json:"loaded_at"`
	LastUsed time.Time `json:"last_used"`
	Uses     int64     `json:"uses"`
}

// TransformRecord is one entry of the transform history.
type TransformRecord struct {
	ID        string        `json:"id"`
	Style     Style         `json:"style"`
	InWidth   int           `json:"in_width"`
	InHeight  int           `json:"in_height"`
	OutWidth  int           `json:"out_width"`
	OutHeight int           `json:"out_height"`
	OutBytes  int64         `json:"out_bytes"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// HumanSize formats a byte count for display (e.g. "6.7 MB").
func HumanSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
