package models

import "time"

// FeatureSpec is one feature of an example: a label with an optional value.
type FeatureSpec struct {
	Label string   `json:"label"`
	Value *float64 `json:"value,omitempty"`
}

// NamespaceSpec is a named block of features. Scale 0 means no scale.
type NamespaceSpec struct {
	Name     string        `json:"name"`
	Scale    float64       `json:"scale,omitempty"`
	Features []FeatureSpec `json:"features"`
}

// ExampleRequest represents a labelled example to train on.
type ExampleRequest struct {
	Label      *float64        `json:"label,omitempty"`
	Importance *float64        `json:"importance,omitempty"`
	Base       *float64        `json:"base,omitempty"`
	Tag        string          `json:"tag,omitempty"`
	Features   []FeatureSpec   `json:"features,omitempty"`
	Namespaces []NamespaceSpec `json:"namespaces,omitempty"`
	// Raw is sent verbatim when set; the other fields are ignored.
	Raw string `json:"raw,omitempty"`
}

// PredictRequest represents an unlabelled example to score.
type PredictRequest struct {
	Tag        string          `json:"tag,omitempty"`
	Features   []FeatureSpec   `json:"features,omitempty"`
	Namespaces []NamespaceSpec `json:"namespaces,omitempty"`
}

// SaveRequest asks the engine to write its model.
type SaveRequest struct {
	// Path defaults to <checkpoint_dir>/<id>.vw.
	Path string   `json:"path,omitempty"`
	Tags []string `json:"tags,omitempty"`
	// Wait polls for the file up to this long before returning.
	Wait Duration `json:"wait,omitempty"`
}

// ListRequest represents a request to list checkpoints.
type ListRequest struct {
	SessionID string             `json:"session_id,omitempty"`
	Status    []CheckpointStatus `json:"status,omitempty"`
	Tags      []string           `json:"tags,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Offset    int                `json:"offset,omitempty"`
}

// PredictionResult is the parsed engine answer to one example. NaN and
// infinite values, which vw prints once a model diverges, are reported as
// null with NonFinite set; Raw keeps the original text.
type PredictionResult struct {
	SessionID  string     `json:"session_id"`
	Line       string     `json:"line"`
	Raw        string     `json:"raw"`
	Values     []*float64 `json:"values"`
	Prediction *float64   `json:"prediction"`
	Importance *float64   `json:"importance,omitempty"`
	NonFinite  bool       `json:"non_finite,omitempty"`
}

// SessionInfo describes the hosted engine session.
type SessionInfo struct {
	ID          string    `json:"id"`
	Command     string    `json:"command"`
	State       string    `json:"state"`
	Transport   string    `json:"transport"`
	Endpoint    string    `json:"endpoint,omitempty"`
	ActiveMode  bool      `json:"active_mode"`
	StartedAt   time.Time `json:"started_at"`
	Uptime      string    `json:"uptime"`
	Examples    int64     `json:"examples"`
	Predictions int64     `json:"predictions"`
	Checkpoints int       `json:"checkpoints"`
	Errors      int64     `json:"errors"`
	LastLine    string    `json:"last_line,omitempty"`
}
