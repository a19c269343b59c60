// Package style holds the style vocabulary shared by the classifier,
// the per-artist style profiles, and the ranking boost.
package style

import (
	"fmt"
	"regexp"
)

// MaxNameLength bounds style names accepted from the API.
const MaxNameLength = 64

var nameRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Detection is one classifier hit: a style name with its confidence.
type Detection struct {
	Name       string
	Confidence float64
}

// Thresholds maps style name to the minimum classifier confidence
// required to accept a detection. Different styles need different
// minimums, so this is configured, not hardcoded.
type Thresholds struct {
	perStyle map[string]float64
	fallback float64
}

// NewThresholds creates a threshold table with a fallback minimum for
// styles without an explicit entry.
func NewThresholds(perStyle map[string]float64, fallback float64) (Thresholds, error) {
	if fallback < 0 || fallback > 1 {
		return Thresholds{}, fmt.Errorf("fallback threshold %v out of [0,1]", fallback)
	}
	for name, v := range perStyle {
		if v < 0 || v > 1 {
			return Thresholds{}, fmt.Errorf("threshold for %q out of [0,1]: %v", name, v)
		}
	}
	return Thresholds{perStyle: perStyle, fallback: fallback}, nil
}

// Min returns the minimum confidence for the given style.
func (t Thresholds) Min(name string) float64 {
	if v, ok := t.perStyle[name]; ok {
		return v
	}
	return t.fallback
}

// Apply filters detections below their per-style minimum, preserving order.
func (t Thresholds) Apply(detections []Detection) []Detection {
	out := detections[:0:0]
	for _, d := range detections {
		if d.Confidence >= t.Min(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

// Profile is an artist's portfolio breakdown: style name to share in [0,1],
// precomputed from per-image classification.
type Profile map[string]float64

// ValidateName checks a user-supplied style filter value.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("style name is empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("style name too long (max %d chars)", MaxNameLength)
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("style name %q has disallowed characters", name)
	}
	return nil
}
