package model

import "time"

// BatchStatus represents the current state of a scoring batch.
type BatchStatus string

const (
	BatchPending  BatchStatus = "pending"
	BatchScoring  BatchStatus = "scoring"
	BatchComplete BatchStatus = "complete"
	BatchError    BatchStatus = "error"
	BatchTimedOut BatchStatus = "timed_out"
)

// Terminal reports whether no further transition is expected.
func (s BatchStatus) Terminal() bool {
	return s == BatchComplete || s == BatchError || s == BatchTimedOut
}

// ScoringBatch is one persisted scoring run for a client.
type ScoringBatch struct {
	ID            string      `json:"id"`
	ClientID      string      `json:"client_id"`
	Status        BatchStatus `json:"status"`
	Provider      string      `json:"provider,omitempty"`
	Model         string      `json:"model,omitempty"`
	TotalPages    int         `json:"total_pages"`
	Stats         Stats       `json:"stats"`
	Usage         Usage       `json:"usage"`
	EstimatedCost float64     `json:"estimated_cost"`
	ActualCost    float64     `json:"actual_cost"`
	PDFPaths      []string    `json:"pdf_paths,omitempty"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// BatchUpdate carries the fields written when a batch changes status.
type BatchUpdate struct {
	Status     BatchStatus
	Stats      *Stats
	Usage      *Usage
	ActualCost float64
	Error      string
}

// StoredScore is a persisted property score.
type StoredScore struct {
	BatchID           string        `json:"batch_id"`
	ClientID          string        `json:"client_id"`
	AddressNormalized string        `json:"address_normalized"`
	Score             PropertyScore `json:"score"`
	ScoredAt          time.Time     `json:"scored_at"`
}
