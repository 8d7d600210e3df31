package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"passforge/internal/card"
	"passforge/internal/encoder"
	"passforge/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testCreds() encoder.Credentials {
	return encoder.Credentials{
		AppleTeamID:     "TEAM123456",
		ApplePassTypeID: "pass.example.passforge",
		GoogleIssuerID:  "3388000000012345",
		GoogleClassID:   "passforge_loyalty",
	}
}

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	m := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.PutBusiness(ctx, &card.BusinessRecord{
		ID: "biz-1", Name: "Bean Scene", Email: "owner@beanscene.example",
	}))
	require.NoError(t, m.PutStampCard(ctx, &card.StampCardRecord{
		ID: "card-coffee", BusinessID: "biz-1", Name: "Coffee Club",
		TotalStamps: 10, RewardDescription: "Free coffee",
		Status: "active", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, m.PutMembershipCard(ctx, &card.MembershipCardRecord{
		ID: "card-yoga", BusinessID: "biz-1", Name: "Yoga Pass",
		MembershipType: "Gold", TotalSessions: 20, Cost: 99.99, DurationDays: 90,
		Benefits: []string{"Mat rental"},
		Status:   "active", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, m.PutCustomerProgress(ctx, &card.CustomerProgressRecord{
		CardID: "card-coffee", CustomerID: "cust-1",
		CustomerEmail: "ada@example.com", CurrentStamps: 5, MemberSince: now,
	}))
	return m
}

func newTestOrchestrator(t *testing.T, ds card.Datastore, artifacts store.ArtifactStore, cfg Config) *Orchestrator {
	t.Helper()
	o := New(cfg, card.NewBuilder(ds, nil), encoder.New(testCreds()), artifacts, nil, nil)
	t.Cleanup(o.Close)
	return o
}

func TestGenerate_AllPlatforms(t *testing.T) {
	m := seededStore(t)
	o := newTestOrchestrator(t, m, m, Config{})

	id, err := o.Enqueue(EnqueueParams{
		CardID:     "card-coffee",
		CustomerID: "cust-1",
		Platforms:  []encoder.Platform{encoder.PlatformApple, encoder.PlatformGoogle, encoder.PlatformWeb},
	})
	require.NoError(t, err)
	o.Wait()

	res := o.GetResult(id)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	require.Len(t, res.Platforms, 3)
	for p, pr := range res.Platforms {
		assert.True(t, pr.Success, "platform %s: %s", p, pr.Error)
		require.NotNil(t, pr.Artifact)
		assert.NotEmpty(t, pr.Artifact.Location)
	}
	assert.Equal(t, "PASSFORGE-STAMP-card-coffee-cust-1", res.Card.Barcode.Value)
	assert.Equal(t, 3, m.ArtifactCount())
	assert.Positive(t, res.ProcessingTime)
}

func TestGenerate_UnknownCardFails(t *testing.T) {
	m := seededStore(t)
	o := newTestOrchestrator(t, m, m, Config{})

	id, err := o.Enqueue(EnqueueParams{
		CardID:    "card-missing",
		Platforms: []encoder.Platform{encoder.PlatformWeb},
	})
	require.NoError(t, err)
	o.Wait()

	assert.Nil(t, o.GetResult(id))
	f := o.GetFailure(id)
	require.NotNil(t, f)
	assert.Contains(t, f.Error, "not found")

	st := o.QueueStatus()
	assert.Empty(t, st.Pending)
	assert.Empty(t, st.Processing)
	require.Len(t, st.Failed, 1)
	assert.Equal(t, id, st.Failed[0].Request.ID)
}

func TestGenerate_ValidationFailure(t *testing.T) {
	m := seededStore(t)
	// Break the business record so the canonical card fails validation.
	require.NoError(t, m.PutBusiness(context.Background(), &card.BusinessRecord{
		ID: "biz-1", Name: "Bean Scene", Email: "",
	}))
	o := newTestOrchestrator(t, m, m, Config{})

	id, err := o.Enqueue(EnqueueParams{
		CardID:    "card-coffee",
		Platforms: []encoder.Platform{encoder.PlatformWeb},
	})
	require.NoError(t, err)
	o.Wait()

	f := o.GetFailure(id)
	require.NotNil(t, f)
	assert.Contains(t, f.Error, "business email")
	assert.Equal(t, 0, m.ArtifactCount(), "no encoder may run after validation fails")
}

func TestGenerate_EncodingFailureIsScoped(t *testing.T) {
	m := seededStore(t)
	// No Google issuer id: the google slot must fail, siblings succeed.
	creds := testCreds()
	creds.GoogleIssuerID = ""
	o := New(Config{}, card.NewBuilder(m, nil), encoder.New(creds), m, nil, nil)
	t.Cleanup(o.Close)

	id, err := o.Enqueue(EnqueueParams{
		CardID:    "card-yoga",
		Platforms: []encoder.Platform{encoder.PlatformApple, encoder.PlatformGoogle, encoder.PlatformWeb},
	})
	require.NoError(t, err)
	o.Wait()

	res := o.GetResult(id)
	require.NotNil(t, res, "one platform failing must not fail the request")
	assert.False(t, res.Success)
	assert.True(t, res.Platforms[encoder.PlatformApple].Success)
	assert.True(t, res.Platforms[encoder.PlatformWeb].Success)
	google := res.Platforms[encoder.PlatformGoogle]
	assert.False(t, google.Success)
	assert.Contains(t, google.Error, "issuer id")
	assert.Nil(t, o.GetFailure(id))
}

func TestEnqueue_Rejections(t *testing.T) {
	m := seededStore(t)
	o := newTestOrchestrator(t, m, m, Config{})

	_, err := o.Enqueue(EnqueueParams{Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.Error(t, err)

	_, err = o.Enqueue(EnqueueParams{CardID: "card-coffee"})
	require.Error(t, err)

	_, err = o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{"windows"}})
	require.Error(t, err)
}

// slowStore delays card lookups so requests stay in processing long enough
// to observe the bucket.
type slowStore struct {
	*store.MemoryStore
	delay time.Duration
}

func (s *slowStore) StampCard(ctx context.Context, id string) (*card.StampCardRecord, *card.BusinessRecord, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.MemoryStore.StampCard(ctx, id)
}

func TestBoundedConcurrency(t *testing.T) {
	m := seededStore(t)
	slow := &slowStore{MemoryStore: m, delay: 30 * time.Millisecond}
	o := newTestOrchestrator(t, slow, m, Config{MaxConcurrent: 3})

	const n = 20
	for i := 0; i < n; i++ {
		_, err := o.Enqueue(EnqueueParams{
			CardID:    "card-coffee",
			Platforms: []encoder.Platform{encoder.PlatformWeb},
		})
		require.NoError(t, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	maxObserved := 0
	for time.Now().Before(deadline) {
		st := o.QueueStatus()
		if len(st.Processing) > maxObserved {
			maxObserved = len(st.Processing)
		}
		if len(st.Completed)+len(st.Failed) == n {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	o.Wait()

	assert.LessOrEqual(t, maxObserved, 3)
	st := o.QueueStatus()
	assert.Len(t, st.Completed, n)
	assert.Empty(t, st.Failed)
}

// orderingStore records the order in which artifacts arrive.
type orderingStore struct {
	*store.MemoryStore
	mu    sync.Mutex
	order []string
}

func (s *orderingStore) StoreArtifact(ctx context.Context, serial, platform string, payload []byte) (store.ArtifactRef, error) {
	s.mu.Lock()
	s.order = append(s.order, serial)
	s.mu.Unlock()
	return s.MemoryStore.StoreArtifact(ctx, serial, platform, payload)
}

func TestPriorityDequeueOrder(t *testing.T) {
	m := seededStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	// Distinct cards so the recorded serials identify the requests.
	for _, id := range []string{"card-low", "card-high"} {
		require.NoError(t, m.PutStampCard(ctx, &card.StampCardRecord{
			ID: id, BusinessID: "biz-1", Name: id,
			TotalStamps: 10, Status: "active", CreatedAt: now, UpdatedAt: now,
		}))
	}

	rec := &orderingStore{MemoryStore: m}
	slow := &slowStore{MemoryStore: m, delay: 40 * time.Millisecond}
	o := newTestOrchestrator(t, slow, rec, Config{MaxConcurrent: 1})

	// Blocker occupies the single worker; the next two sit in pending.
	_, err := o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.NoError(t, err)
	_, err = o.Enqueue(EnqueueParams{CardID: "card-low", Priority: PriorityLow, Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.NoError(t, err)
	_, err = o.Enqueue(EnqueueParams{CardID: "card-high", Priority: PriorityHigh, Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.NoError(t, err)

	o.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.order, 3)
	assert.Contains(t, rec.order[1], "card-high", "high priority must be dequeued before low")
	assert.Contains(t, rec.order[2], "card-low")
}

func TestRetentionCaps(t *testing.T) {
	m := seededStore(t)
	o := newTestOrchestrator(t, m, m, Config{CompletedRetention: 5, FailedRetention: 2})

	var first string
	for i := 0; i < 8; i++ {
		id, err := o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{encoder.PlatformWeb}})
		require.NoError(t, err)
		if i == 0 {
			first = id
		}
		o.Wait()
	}
	for i := 0; i < 4; i++ {
		_, err := o.Enqueue(EnqueueParams{CardID: "card-missing", Platforms: []encoder.Platform{encoder.PlatformWeb}})
		require.NoError(t, err)
		o.Wait()
	}

	st := o.QueueStatus()
	assert.Len(t, st.Completed, 5)
	assert.Len(t, st.Failed, 2)
	assert.Nil(t, o.GetResult(first), "oldest completed entry must be evicted")
}

// flakyStore fails the first n writes, then succeeds.
type flakyStore struct {
	*store.MemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) StoreArtifact(ctx context.Context, serial, platform string, payload []byte) (store.ArtifactRef, error) {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return store.ArtifactRef{}, fmt.Errorf("transient write failure")
	}
	return s.MemoryStore.StoreArtifact(ctx, serial, platform, payload)
}

func TestPersistRetry(t *testing.T) {
	m := seededStore(t)

	t.Run("recovers within budget", func(t *testing.T) {
		flaky := &flakyStore{MemoryStore: m, failures: 2}
		o := newTestOrchestrator(t, m, flaky, Config{
			Retry: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		})

		id, err := o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{encoder.PlatformWeb}})
		require.NoError(t, err)
		o.Wait()

		res := o.GetResult(id)
		require.NotNil(t, res)
		assert.True(t, res.Success)
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("exhausted budget scopes failure to the platform", func(t *testing.T) {
		flaky := &flakyStore{MemoryStore: m, failures: 99}
		o := newTestOrchestrator(t, m, flaky, Config{
			Retry: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		})

		id, err := o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{encoder.PlatformWeb}})
		require.NoError(t, err)
		o.Wait()

		res := o.GetResult(id)
		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.Contains(t, res.Platforms[encoder.PlatformWeb].Error, "after 2 attempts")
	})
}

func TestCancelPendingRequest(t *testing.T) {
	m := seededStore(t)
	slow := &slowStore{MemoryStore: m, delay: 60 * time.Millisecond}
	o := newTestOrchestrator(t, slow, m, Config{MaxConcurrent: 1})

	_, err := o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.NoError(t, err)
	victim, err := o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.NoError(t, err)

	require.NoError(t, o.Cancel(victim))
	o.Wait()

	f := o.GetFailure(victim)
	require.NotNil(t, f)
	assert.Contains(t, f.Error, "cancelled")
	assert.Nil(t, o.GetResult(victim))

	// Terminal requests cannot be cancelled again.
	require.Error(t, o.Cancel(victim))
}

func TestCancelProcessingRequest(t *testing.T) {
	m := seededStore(t)
	slow := &slowStore{MemoryStore: m, delay: 5 * time.Second}
	o := newTestOrchestrator(t, slow, m, Config{MaxConcurrent: 1})

	id, err := o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(o.QueueStatus().Processing) == 1
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, o.Cancel(id))
	o.Wait()

	f := o.GetFailure(id)
	require.NotNil(t, f)
	// The card lookup dies on the cancelled context; the failure must still
	// carry the cancellation kind, not read like a store error.
	assert.Contains(t, f.Error, "request cancelled")
	assert.Nil(t, o.GetResult(id))

	st := o.QueueStatus()
	assert.Empty(t, st.Processing)
	require.Len(t, st.Failed, 1)
}

func TestTerminalStateExclusivity(t *testing.T) {
	m := seededStore(t)
	o := newTestOrchestrator(t, m, m, Config{})

	okID, err := o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.NoError(t, err)
	badID, err := o.Enqueue(EnqueueParams{CardID: "card-missing", Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.NoError(t, err)
	o.Wait()

	st := o.QueueStatus()
	assert.Empty(t, st.Pending)
	assert.Empty(t, st.Processing)

	seen := map[string]string{}
	for _, r := range st.Completed {
		seen[r.RequestID] = "completed"
	}
	for _, f := range st.Failed {
		require.NotContains(t, seen, f.Request.ID, "a request must land in exactly one terminal bucket")
		seen[f.Request.ID] = "failed"
	}
	assert.Equal(t, "completed", seen[okID])
	assert.Equal(t, "failed", seen[badID])

	// Snapshots are copies; mutating one must not corrupt queue state.
	if len(st.Completed) > 0 {
		st.Completed[0].RequestID = "mutated"
		assert.NotNil(t, o.GetResult(okID))
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	m := seededStore(t)
	o := New(Config{}, card.NewBuilder(m, nil), encoder.New(testCreds()), m, nil, nil)
	o.Close()

	_, err := o.Enqueue(EnqueueParams{CardID: "card-coffee", Platforms: []encoder.Platform{encoder.PlatformWeb}})
	require.ErrorIs(t, err, ErrClosed)
}

func TestResultLog(t *testing.T) {
	m := seededStore(t)
	o := New(Config{}, card.NewBuilder(m, nil), encoder.New(testCreds()), m, m, nil)
	t.Cleanup(o.Close)

	id, err := o.Enqueue(EnqueueParams{CardID: "card-yoga", Platforms: []encoder.Platform{encoder.PlatformGoogle}})
	require.NoError(t, err)
	o.Wait()

	res := o.GetResult(id)
	require.NotNil(t, res)
	require.True(t, res.Success)

	raw := m.SavedResult(id)
	require.NotEmpty(t, raw, "finished results must reach the durable log")
	assert.True(t, strings.Contains(string(raw), id))
}
