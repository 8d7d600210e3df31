// Package store provides the backing datastore and artifact store behind
// the pass pipeline. Two implementations exist: a SQLite store for real
// deployments and an in-memory store for tests and demo mode. Both satisfy
// card.Datastore plus the write-side interfaces below.
package store

import (
	"context"
	"time"

	"passforge/internal/card"
)

// ArtifactRef points at one stored platform artifact. Results carry these
// references, never the artifact bytes.
type ArtifactRef struct {
	ID           string    `json:"id"`
	SerialNumber string    `json:"serial_number"`
	Platform     string    `json:"platform"`
	Location     string    `json:"location"`
	StoredAt     time.Time `json:"stored_at"`
}

// ArtifactStore persists encoded pass artifacts and hands back references.
type ArtifactStore interface {
	StoreArtifact(ctx context.Context, serialNumber, platform string, payload []byte) (ArtifactRef, error)
}

// ResultLog durably records finished generation results so history survives
// the in-memory queue's retention caps and process restarts.
type ResultLog interface {
	SaveResult(ctx context.Context, requestID string, success bool, payload []byte, generatedAt time.Time) error
}

// CardRef identifies one card of either kind, used by sweep operations.
type CardRef struct {
	ID   string
	Kind card.Kind
}

// CardLister enumerates every card in the store.
type CardLister interface {
	ListCards(ctx context.Context) ([]CardRef, error)
}

// Writer is the seeding/write interface the CLI uses. The pipeline itself
// only reads.
type Writer interface {
	PutBusiness(ctx context.Context, rec *card.BusinessRecord) error
	PutStampCard(ctx context.Context, rec *card.StampCardRecord) error
	PutMembershipCard(ctx context.Context, rec *card.MembershipCardRecord) error
	PutCustomerProgress(ctx context.Context, rec *card.CustomerProgressRecord) error
}
