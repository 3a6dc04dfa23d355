// Package catalog maps each style to its pretrained weight file on the
// remote model host. This is the "model phonebook": friendly style names
// like "candy" resolve to ONNX files under a fixed base URL.
package catalog

import (
	"fmt"
	"strings"

	"github.com/tutu-network/painter/internal/domain"
)

// DefaultBaseURL is the directory holding the fast-neural-style ONNX files.
const DefaultBaseURL = "https://github.com/onnx/models/raw/main/vision/style_transfer/fast_neural_style/model"

// Entry describes one downloadable style model.
type Entry struct {
	Style       domain.Style
	File        string // Filename under the base URL (e.g. "candy-9.onnx")
	Description string
	SizeBytes   int64 // Approximate download size, for progress before Content-Length is known
}

// URL joins the entry's file onto baseURL.
func (e Entry) URL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/" + e.File
}

// LocalName is the filename used in the local cache directory.
func (e Entry) LocalName() string {
	return string(e.Style) + ".onnx"
}

var builtin = []Entry{
	{
		Style:       domain.StyleMosaic,
		File:        "mosaic-9.onnx",
		Description: "Stained-glass mosaic tiles",
		SizeBytes:   6_700_000,
	},
	{
		Style:       domain.StyleCandy,
		File:        "candy-9.onnx",
		Description: "Bright candy-colored swirls",
		SizeBytes:   6_700_000,
	},
	{
		Style:       domain.StyleRainPrincess,
		File:        "rain-princess-9.onnx",
		Description: "Leonid Afremov's Rain Princess",
		SizeBytes:   6_700_000,
	},
	{
		Style:       domain.StyleUdnie,
		File:        "udnie-9.onnx",
		Description: "Francis Picabia's Udnie",
		SizeBytes:   6_700_000,
	},
	{
		Style:       domain.StylePointilism,
		File:        "pointilism-9.onnx",
		Description: "Seurat-like pointillism dots",
		SizeBytes:   6_700_000,
	},
}

// Catalog is an ordered, immutable set of enabled style entries.
type Catalog struct {
	entries []Entry
	byStyle map[domain.Style]Entry
}

// Default returns a catalog with every built-in style enabled.
func Default() *Catalog {
	return New(builtin...)
}

// New builds a catalog from entries. Later duplicates are ignored.
func New(entries ...Entry) *Catalog {
	c := &Catalog{byStyle: make(map[domain.Style]Entry, len(entries))}
	for _, e := range entries {
		if _, dup := c.byStyle[e.Style]; dup {
			continue
		}
		c.entries = append(c.entries, e)
		c.byStyle[e.Style] = e
	}
	return c
}

// Only returns a catalog restricted to the named styles, in the order given.
// An empty list keeps every entry.
func (c *Catalog) Only(names ...string) (*Catalog, error) {
	if len(names) == 0 {
		return New(c.entries...), nil
	}
	subset := make([]Entry, 0, len(names))
	for _, n := range names {
		e, err := c.Lookup(n)
		if err != nil {
			return nil, err
		}
		subset = append(subset, e)
	}
	return New(subset...), nil
}

// Lookup finds the entry for a raw style name.
// Fails with domain.ErrUnknownStyle for names outside this catalog.
func (c *Catalog) Lookup(name string) (Entry, error) {
	style, err := domain.ParseStyle(name)
	if err != nil {
		return Entry{}, err
	}
	e, ok := c.byStyle[style]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q is not enabled", domain.ErrUnknownStyle, name)
	}
	return e, nil
}

// Entries returns the enabled entries in order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Styles returns the enabled style names in order.
func (c *Catalog) Styles() []domain.Style {
	out := make([]domain.Style, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Style
	}
	return out
}
