package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// State is the last state a page operation reached.
type State string

const (
	StateNavigating State = "navigating"
	StateSettling   State = "settling"
	StateCollecting State = "collecting"
	StateDisplaying State = "displaying"
	StateWriting    State = "writing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Failure describes one resource that could not be mirrored.
type Failure struct {
	Source string `json:"source"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

// Report is the outcome of mirroring one address. Sent to sinks once the
// operation reaches StateDone or StateFailed.
type Report struct {
	ID           string    `json:"id"` // UUIDv7
	Page         Identity  `json:"page"`
	State        State     `json:"state"`
	StatusCode   int       `json:"status_code,omitempty"`
	Error        string    `json:"error,omitempty"`
	Links        int       `json:"links"`
	Images       int       `json:"images"`
	Scripts      int       `json:"scripts"`
	Saved        int       `json:"saved"`
	Failures     []Failure `json:"failures,omitempty"`
	DocumentPath string    `json:"document_path,omitempty"`
	DocumentHash string    `json:"document_hash,omitempty"` // SHA-256 hex
	StartedAt    int64     `json:"started_at"`              // epoch milliseconds
	FinishedAt   int64     `json:"finished_at"`             // epoch milliseconds
}

// MarshalReport serialises a Report to JSON.
func MarshalReport(r *Report) ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalReport deserialises a Report from JSON.
func UnmarshalReport(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// HashDocument returns the SHA-256 hex digest of a serialized document.
func HashDocument(doc []byte) string {
	h := sha256.Sum256(doc)
	return fmt.Sprintf("%x", h)
}
