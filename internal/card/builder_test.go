package card

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDatastore serves fixed records keyed by id.
type fakeDatastore struct {
	stamps     map[string]*StampCardRecord
	members    map[string]*MembershipCardRecord
	businesses map[string]*BusinessRecord
	progress   map[string]*CustomerProgressRecord // key: cardID + "/" + customerID
	err        error
}

func (f *fakeDatastore) StampCard(_ context.Context, id string) (*StampCardRecord, *BusinessRecord, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	rec, ok := f.stamps[id]
	if !ok {
		return nil, nil, ErrCardNotFound
	}
	return rec, f.businesses[rec.BusinessID], nil
}

func (f *fakeDatastore) MembershipCard(_ context.Context, id string) (*MembershipCardRecord, *BusinessRecord, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	rec, ok := f.members[id]
	if !ok {
		return nil, nil, ErrCardNotFound
	}
	return rec, f.businesses[rec.BusinessID], nil
}

func (f *fakeDatastore) CustomerProgress(_ context.Context, cardID, customerID string) (*CustomerProgressRecord, error) {
	rec, ok := f.progress[cardID+"/"+customerID]
	if !ok {
		return nil, ErrNoProgress
	}
	return rec, nil
}

func testStore() *fakeDatastore {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &fakeDatastore{
		businesses: map[string]*BusinessRecord{
			"biz-1": {ID: "biz-1", Name: "Bean Scene", Email: "owner@beanscene.example"},
		},
		stamps: map[string]*StampCardRecord{
			"card-coffee": {
				ID: "card-coffee", BusinessID: "biz-1",
				Name: "Coffee Club", Description: "Buy ten, get one free",
				TotalStamps: 10, RewardDescription: "Free coffee",
				BackgroundColor: "#3E2723", ForegroundColor: "#FFFFFF", LabelColor: "#D7CCC8",
				Status: "active", CreatedAt: created, UpdatedAt: created,
			},
		},
		members: map[string]*MembershipCardRecord{
			"card-yoga": {
				ID: "card-yoga", BusinessID: "biz-1",
				Name: "Yoga Pass", MembershipType: "Gold",
				TotalSessions: 20, Cost: 99.99, DurationDays: 90,
				Benefits:        []string{"Mat rental", "Towel service"},
				BackgroundColor: "#1B5E20", ForegroundColor: "#FFFFFF", LabelColor: "#C8E6C9",
				Status: "active", CreatedAt: created, UpdatedAt: created,
			},
		},
		progress: map[string]*CustomerProgressRecord{
			"card-coffee/cust-1": {
				CardID: "card-coffee", CustomerID: "cust-1",
				CustomerName: "Ada", CustomerEmail: "ada@example.com",
				CurrentStamps: 5,
				MemberSince:   created,
			},
			"card-yoga/cust-1": {
				CardID: "card-yoga", CustomerID: "cust-1",
				CustomerName: "Ada", CustomerEmail: "ada@example.com",
				SessionsUsed: 3,
				MemberSince:  created,
			},
		},
	}
}

func fixedBuilder(ds Datastore, at time.Time) *Builder {
	b := NewBuilder(ds, nil)
	b.now = func() time.Time { return at }
	return b
}

func TestBuild_StampWithProgress(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	b := fixedBuilder(testStore(), now)

	c, err := b.Build(context.Background(), "card-coffee", "cust-1")
	require.NoError(t, err)

	assert.Equal(t, KindStamp, c.Kind)
	require.NotNil(t, c.Stamp)
	assert.Nil(t, c.Membership)
	assert.Equal(t, 5, c.Stamp.CurrentStamps)
	assert.Equal(t, 10, c.Stamp.TotalStamps)
	assert.InDelta(t, 0.5, c.Stamp.Progress, 1e-9)

	require.NotNil(t, c.Customer)
	assert.Equal(t, "cust-1", c.Customer.ID)
	assert.Equal(t, "PASSFORGE-STAMP-card-coffee-cust-1", c.Barcode.Value)
	assert.Equal(t, FormatQR, c.Barcode.Format)
	assert.Equal(t, 1, c.Version)
}

func TestBuild_StampTemplate(t *testing.T) {
	b := fixedBuilder(testStore(), time.Now())

	t.Run("no customer id", func(t *testing.T) {
		c, err := b.Build(context.Background(), "card-coffee", "")
		require.NoError(t, err)
		assert.True(t, c.IsTemplate())
		assert.Equal(t, 0, c.Stamp.CurrentStamps)
		assert.Equal(t, "PASSFORGE-STAMP-card-coffee-TEMPLATE", c.Barcode.Value)
	})

	t.Run("customer without progress row", func(t *testing.T) {
		c, err := b.Build(context.Background(), "card-coffee", "cust-unknown")
		require.NoError(t, err)
		assert.True(t, c.IsTemplate(), "missing join row must fall back to template, not fail")
		assert.Equal(t, "PASSFORGE-STAMP-card-coffee-cust-unknown", c.Barcode.Value)
	})
}

func TestBuild_MembershipDefaultExpiry(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	b := fixedBuilder(testStore(), now)

	c, err := b.Build(context.Background(), "card-yoga", "cust-1")
	require.NoError(t, err)

	assert.Equal(t, KindMembership, c.Kind)
	require.NotNil(t, c.Membership)
	assert.Nil(t, c.Stamp)
	assert.Equal(t, 3, c.Membership.SessionsUsed)
	assert.Equal(t, 20, c.Membership.TotalSessions)
	// No customer-specific expiry in the progress row: build time + 90 days.
	assert.Equal(t, now.AddDate(0, 0, 90), c.Membership.ExpiryDate)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, []string{"Mat rental", "Towel service"}, c.Membership.Benefits)
	assert.Equal(t, "PASSFORGE-MEMBER-card-yoga-cust-1", c.Barcode.Value)
}

func TestBuild_MembershipCustomExpiry(t *testing.T) {
	ds := testStore()
	custom := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	ds.progress["card-yoga/cust-1"].ExpiryDate = &custom
	b := fixedBuilder(ds, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	c, err := b.Build(context.Background(), "card-yoga", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, custom, c.Membership.ExpiryDate)
}

func TestBuild_NotFound(t *testing.T) {
	b := NewBuilder(testStore(), nil)

	_, err := b.Build(context.Background(), "card-missing", "")
	require.ErrorIs(t, err, ErrCardNotFound)
}

func TestBuild_SerialUniquePerGeneration(t *testing.T) {
	ds := testStore()
	t1 := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	c1, err := fixedBuilder(ds, t1).Build(context.Background(), "card-coffee", "")
	require.NoError(t, err)
	c2, err := fixedBuilder(ds, t2).Build(context.Background(), "card-coffee", "")
	require.NoError(t, err)

	assert.NotEqual(t, c1.SerialNumber, c2.SerialNumber)
}
