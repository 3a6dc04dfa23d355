package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.
// Callers wrap them with fmt.Errorf("...: %w") and test with errors.Is.

var (
	// Style errors
	ErrUnknownStyle = errors.New("unknown style")

	// Asset errors
	ErrAssetFetch    = errors.New("asset download failed")
	ErrAssetNotFound = errors.New("asset not present locally")

	// Inference errors
	ErrModelLoad = errors.New("model could not be loaded")
	ErrInference = errors.New("inference runtime rejected input")
)
