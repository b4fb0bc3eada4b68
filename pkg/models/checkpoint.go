// Package models defines the core domain types for the wappa service.
package models

import (
	"time"
)

// CheckpointStatus represents the state of a saved model file.
type CheckpointStatus string

const (
	// CheckpointStatusPending means the save command was sent but vw has
	// not produced the file yet.
	CheckpointStatusPending CheckpointStatus = "pending"
	CheckpointStatusWritten CheckpointStatus = "written"
	// CheckpointStatusMissing means the file is gone or never appeared.
	CheckpointStatusMissing CheckpointStatus = "missing"
)

// ValidCheckpointStatus checks if a status is valid.
func ValidCheckpointStatus(s CheckpointStatus) bool {
	switch s {
	case CheckpointStatusPending, CheckpointStatusWritten, CheckpointStatusMissing:
		return true
	}
	return false
}

// Checkpoint is a model file requested from a running session.
type Checkpoint struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Path      string           `json:"path"`
	Status    CheckpointStatus `json:"status"`
	Tags      []string         `json:"tags,omitempty"`
	Examples  int64            `json:"examples"`
	SizeBytes int64            `json:"size_bytes,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	WrittenAt *time.Time       `json:"written_at,omitempty"`
}

// IsWritten returns true once the model file has been seen on disk.
func (c *Checkpoint) IsWritten() bool {
	return c.Status == CheckpointStatusWritten
}

// IsPending returns true while vw may still be writing the file.
func (c *Checkpoint) IsPending() bool {
	return c.Status == CheckpointStatusPending
}

// Duration is a wrapper around time.Duration for JSON marshaling.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		return nil
	}
	s := string(b[1 : len(b)-1])
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// CheckpointSummary provides a condensed view of a checkpoint for listing.
type CheckpointSummary struct {
	ID        string           `json:"id"`
	Path      string           `json:"path"`
	Status    CheckpointStatus `json:"status"`
	Examples  int64            `json:"examples"`
	CreatedAt time.Time        `json:"created_at"`
	Age       string           `json:"age"`
}

// ToSummary converts a Checkpoint to a CheckpointSummary.
func (c *Checkpoint) ToSummary(now time.Time) CheckpointSummary {
	return CheckpointSummary{
		ID:        c.ID,
		Path:      truncatePath(c.Path, 80),
		Status:    c.Status,
		Examples:  c.Examples,
		CreatedAt: c.CreatedAt,
		Age:       now.Sub(c.CreatedAt).Truncate(time.Second).String(),
	}
}

// truncatePath keeps the tail of long paths, where the file name is.
func truncatePath(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen+3:]
}
