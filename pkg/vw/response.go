package vw

import (
	"fmt"
	"strconv"
	"strings"
)

// Response is one parsed vw output line.
type Response struct {
	Raw    string
	Values []float64
	// Prediction is the first numeric token, nil when there is none.
	Prediction *float64
	// Importance is the second numeric token. It is only set in active
	// learning mode, where a missing token reads as 0.
	Importance *float64
}

// ParseResponse extracts the numeric tokens from a vw output line.
// Non-numeric tokens, such as echoed tags, are skipped.
func ParseResponse(raw string, activeMode bool) *Response {
	r := &Response{Raw: raw}
	for _, tok := range strings.Fields(raw) {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		r.Values = append(r.Values, v)
	}

	if len(r.Values) > 0 {
		prediction := r.Values[0]
		r.Prediction = &prediction
	}
	if activeMode {
		importance := 0.0
		if len(r.Values) > 1 {
			importance = r.Values[1]
		}
		r.Importance = &importance
	}
	return r
}

func (r *Response) String() string {
	pred := "none"
	if r.Prediction != nil {
		pred = formatFloat(*r.Prediction)
	}
	if r.Importance == nil {
		return fmt.Sprintf("prediction=%s raw=%q", pred, r.Raw)
	}
	return fmt.Sprintf("prediction=%s importance=%s raw=%q", pred, formatFloat(*r.Importance), r.Raw)
}
