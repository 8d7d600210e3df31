// Package orchestrator runs the asynchronous pass-generation pipeline: a
// bounded-concurrency in-memory queue that turns enqueue requests into
// per-platform artifacts via the canonical card builder and the platform
// encoders.
package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"passforge/internal/card"
	"passforge/internal/encoder"
	"passforge/internal/store"
)

// Priority orders dequeueing: high before normal before low, FIFO within a
// class.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// State is the lifecycle of one request. Terminal states (completed,
// failed) are set exactly once and never left.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Request is one unit of generation work. Immutable after Enqueue accepts
// it.
type Request struct {
	ID         string             `json:"id"`
	CardID     string             `json:"card_id"`
	CustomerID string             `json:"customer_id,omitempty"`
	Platforms  []encoder.Platform `json:"platforms"`
	Priority   Priority           `json:"priority"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// PlatformResult is the outcome for a single requested platform. A failure
// here never affects sibling platforms.
type PlatformResult struct {
	Platform encoder.Platform   `json:"platform"`
	Success  bool               `json:"success"`
	Artifact *store.ArtifactRef `json:"artifact,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Result is the immutable record of one finished request. Success is the
// AND of all requested platform outcomes.
type Result struct {
	RequestID      string                              `json:"request_id"`
	Success        bool                                `json:"success"`
	Platforms      map[encoder.Platform]PlatformResult `json:"platforms"`
	Card           *card.UnifiedCardData               `json:"card"`
	GeneratedAt    time.Time                           `json:"generated_at"`
	ProcessingTime time.Duration                       `json:"processing_time"`
}

// Failure records a request that reached the failed bucket.
type Failure struct {
	Request  Request   `json:"request"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Status is a read-only snapshot of the four queue buckets.
type Status struct {
	Pending    []Request `json:"pending"`
	Processing []Request `json:"processing"`
	Completed  []Result  `json:"completed"`
	Failed     []Failure `json:"failed"`
}

// ValidationError reports a canonical card that failed validation before
// any encoder ran.
type ValidationError struct {
	CardID string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("card %q failed validation: %s", e.CardID, strings.Join(e.Errors, "; "))
}

// PersistenceError reports an artifact-store write that failed after all
// retries for one platform.
type PersistenceError struct {
	Platform encoder.Platform
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s artifact: %v", e.Platform, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
