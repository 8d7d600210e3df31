package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"passforge/internal/card"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// demo mode of the CLI; the access pattern mirrors the SQLite store.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]*card.BusinessRecord
	stamps     map[string]*card.StampCardRecord
	members    map[string]*card.MembershipCardRecord
	progress   map[string]*card.CustomerProgressRecord
	artifacts  map[string]ArtifactRef
	results    map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]*card.BusinessRecord),
		stamps:     make(map[string]*card.StampCardRecord),
		members:    make(map[string]*card.MembershipCardRecord),
		progress:   make(map[string]*card.CustomerProgressRecord),
		artifacts:  make(map[string]ArtifactRef),
		results:    make(map[string][]byte),
	}
}

func progressKey(cardID, customerID string) string {
	return cardID + "/" + customerID
}

func (m *MemoryStore) PutBusiness(_ context.Context, rec *card.BusinessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.businesses[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) PutStampCard(_ context.Context, rec *card.StampCardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.stamps[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) PutMembershipCard(_ context.Context, rec *card.MembershipCardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.Benefits = append([]string(nil), rec.Benefits...)
	m.members[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) PutCustomerProgress(_ context.Context, rec *card.CustomerProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.progress[progressKey(rec.CardID, rec.CustomerID)] = &cp
	return nil
}

func (m *MemoryStore) StampCard(_ context.Context, id string) (*card.StampCardRecord, *card.BusinessRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.stamps[id]
	if !ok {
		return nil, nil, card.ErrCardNotFound
	}
	recCopy := *rec
	return &recCopy, m.businessLocked(rec.BusinessID), nil
}

func (m *MemoryStore) MembershipCard(_ context.Context, id string) (*card.MembershipCardRecord, *card.BusinessRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.members[id]
	if !ok {
		return nil, nil, card.ErrCardNotFound
	}
	recCopy := *rec
	recCopy.Benefits = append([]string(nil), rec.Benefits...)
	return &recCopy, m.businessLocked(rec.BusinessID), nil
}

func (m *MemoryStore) CustomerProgress(_ context.Context, cardID, customerID string) (*card.CustomerProgressRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.progress[progressKey(cardID, customerID)]
	if !ok {
		return nil, card.ErrNoProgress
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) businessLocked(id string) *card.BusinessRecord {
	if rec, ok := m.businesses[id]; ok {
		cp := *rec
		return &cp
	}
	return &card.BusinessRecord{ID: id}
}

func (m *MemoryStore) StoreArtifact(_ context.Context, serialNumber, platform string, _ []byte) (ArtifactRef, error) {
	if serialNumber == "" {
		return ArtifactRef{}, fmt.Errorf("store artifact: serial number is empty")
	}
	ref := ArtifactRef{
		ID:           uuid.NewString(),
		SerialNumber: serialNumber,
		Platform:     platform,
		Location:     fmt.Sprintf("mem://artifacts/%s/%s", platform, serialNumber),
		StoredAt:     time.Now().UTC(),
	}
	m.mu.Lock()
	m.artifacts[ref.ID] = ref
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryStore) SaveResult(_ context.Context, requestID string, _ bool, payload []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[requestID] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryStore) ListCards(_ context.Context) ([]CardRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := make([]CardRef, 0, len(m.stamps)+len(m.members))
	for id := range m.stamps {
		refs = append(refs, CardRef{ID: id, Kind: card.KindStamp})
	}
	for id := range m.members {
		refs = append(refs, CardRef{ID: id, Kind: card.KindMembership})
	}
	return refs, nil
}

// SavedResult returns the durable result payload for a request id, or nil.
func (m *MemoryStore) SavedResult(requestID string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.results[requestID]
}

// ArtifactCount reports how many artifacts have been stored; used by tests.
func (m *MemoryStore) ArtifactCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.artifacts)
}
