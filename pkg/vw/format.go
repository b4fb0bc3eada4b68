package vw

import (
	"math"
	"strconv"
	"strings"
)

// formatFloat renders v the way vw's reference clients do: shortest
// round-trip digits, always with a fractional part ("2.0", not "2"), and
// exponent notation outside [1e-4, 1e16).
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Float returns a pointer to v, for the optional fields of Example.
func Float(v float64) *float64 {
	return &v
}
