package domain

import "fmt"

// Style names a visual transformation backed by one pretrained model.
// The set is closed: values outside AllStyles never get past ParseStyle.
type Style string

const (
	StyleMosaic       Style = "mosaic"
	StyleCandy        Style = "candy"
	StyleRainPrincess Style = "rain-princess"
	StyleUdnie        Style = "udnie"
	StylePointilism   Style = "pointilism"
)

var allStyles = []Style{
	StyleMosaic,
	StyleCandy,
	StyleRainPrincess,
	StyleUdnie,
	StylePointilism,
}

// AllStyles returns every known style in catalog order.
func AllStyles() []Style {
	out := make([]Style, len(allStyles))
	copy(out, allStyles)
	return out
}

// ParseStyle validates a raw style name. Matching is exact.
func ParseStyle(s string) (Style, error) {
	name := Style(s)
	if name.Valid() {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStyle, s)
}

// Valid reports whether s is one of the known styles.
func (s Style) Valid() bool {
	for _, known := range allStyles {
		if s == known {
			return true
		}
	}
	return false
}

func (s Style) String() string { return string(s) }

// StyleNames converts styles to plain strings for wire formats.
func StyleNames(styles []Style) []string {
	out := make([]string, len(styles))
	for i, s := range styles {
		out[i] = string(s)
	}
	return out
}
