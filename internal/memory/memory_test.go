package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lazypower/kura/internal/quota"
	"github.com/lazypower/kura/internal/store"
)

// fixedQuota applies the same limits to every owner.
type fixedQuota quota.Limits

func (q fixedQuota) Quota(_ context.Context, _ int64, tier store.Tier) (int, error) {
	return quota.Limits(q).For(tier), nil
}

type failingQuota struct{}

func (failingQuota) Quota(context.Context, int64, store.Tier) (int, error) {
	return 0, errors.New("plan service down")
}

func testStore(t *testing.T, q QuotaSource) *Store {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, q, zaptest.NewLogger(t))
}

var unlimited = fixedQuota{Short: -1, Medium: -1, Long: -1}

func TestSaveRejectsBadArguments(t *testing.T) {
	s := testStore(t, unlimited)
	ctx := context.Background()

	_, err := s.Save(ctx, 1, store.Tier("forever"), "x", "", "")
	assert.ErrorIs(t, err, ErrInvalidTier)

	_, err = s.Save(ctx, 1, store.TierLong, "   ", "", "")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestSaveDisabledTierAlwaysFalse(t *testing.T) {
	s := testStore(t, fixedQuota{Short: 10, Medium: 5, Long: 0})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.Save(ctx, 1, store.TierLong, fmt.Sprintf("fact number %d", i), "high", "profile")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	n, err := s.DB.CountLiveMemories(ctx, 1, store.TierLong, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveUnlimitedNeverRefused(t *testing.T) {
	s := testStore(t, unlimited)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		ok, err := s.Save(ctx, 1, store.TierMedium, fmt.Sprintf("distinct%d fact%d", i, i), "", "")
		require.NoError(t, err)
		assert.True(t, ok, "save %d", i)
	}
	n, err := s.DB.CountLiveMemories(ctx, 1, store.TierMedium, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestSaveAtQuota(t *testing.T) {
	s := testStore(t, fixedQuota{Short: 2, Medium: 2, Long: 2})
	ctx := context.Background()

	for _, c := range []string{"alpha beta", "gamma delta"} {
		ok, err := s.Save(ctx, 1, store.TierLong, c, "", "")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := s.Save(ctx, 1, store.TierLong, "epsilon zeta", "", "")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other owners and tiers have their own budget.
	ok, err = s.Save(ctx, 2, store.TierLong, "epsilon zeta", "", "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Save(ctx, 1, store.TierShort, "epsilon zeta", "", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveMediumExpires(t *testing.T) {
	s := testStore(t, unlimited)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	ok, err := s.Save(ctx, 1, store.TierMedium, "working on the billing migration", "mid", "work")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Save(ctx, 1, store.TierLong, "name is Sam", "high", "profile")
	require.NoError(t, err)
	require.True(t, ok)

	entries, err := s.DB.ListLiveMemories(ctx, 1, store.TierMedium, now, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ExpiresAt)
	assert.Equal(t, now.Add(30*24*time.Hour).UnixMilli(), *entries[0].ExpiresAt)

	long, err := s.DB.ListLiveMemories(ctx, 1, store.TierLong, now, 0)
	require.NoError(t, err)
	require.Len(t, long, 1)
	assert.Nil(t, long[0].ExpiresAt)

	// 31 days later the medium entry is gone from every read; the long one stays.
	s.now = func() time.Time { return now.Add(31 * 24 * time.Hour) }
	mc, err := s.LoadContext(ctx, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, mc.MTM)
	assert.Equal(t, []string{"name is Sam"}, mc.LTM)

	stats, err := s.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Tiers[1].Count)
}

func TestExpiredEntriesFreeQuota(t *testing.T) {
	s := testStore(t, fixedQuota{Short: 1, Medium: 1, Long: 1})
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	ok, err := s.Save(ctx, 1, store.TierMedium, "first topic entirely", "", "")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Save(ctx, 1, store.TierMedium, "second subject here", "", "")
	require.NoError(t, err)
	require.False(t, ok)

	s.now = func() time.Time { return now.Add(31 * 24 * time.Hour) }
	ok, err = s.Save(ctx, 1, store.TierMedium, "second subject here", "", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveDeduplicates(t *testing.T) {
	s := testStore(t, unlimited)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	ok, err := s.Save(ctx, 1, store.TierMedium, "prefers dark roast coffee", "low", "preferences")
	require.NoError(t, err)
	require.True(t, ok)

	later := now.Add(10 * 24 * time.Hour)
	s.now = func() time.Time { return later }
	ok, err = s.Save(ctx, 1, store.TierMedium, "Prefers dark roast coffee!", "high", "")
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := s.DB.ListLiveMemories(ctx, 1, store.TierMedium, later, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1, "similar content refreshes instead of duplicating")
	assert.Equal(t, "prefers dark roast coffee", entries[0].Content)
	assert.Equal(t, "high", entries[0].Importance)
	assert.Equal(t, "preferences", entries[0].Category)
	assert.Equal(t, later.Add(30*24*time.Hour).UnixMilli(), *entries[0].ExpiresAt)

	// The same content in another tier is a separate entry.
	ok, err = s.Save(ctx, 1, store.TierLong, "prefers dark roast coffee", "", "")
	require.NoError(t, err)
	assert.True(t, ok)
	n, err := s.DB.CountLiveMemories(ctx, 1, store.TierLong, later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveConcurrentHoldsQuota(t *testing.T) {
	s := testStore(t, fixedQuota{Short: 3, Medium: 3, Long: 3})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Save(ctx, 1, store.TierLong, fmt.Sprintf("fact%d", i), "", ""); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	n, err := s.DB.CountLiveMemories(ctx, 1, store.TierLong, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSaveQuotaError(t *testing.T) {
	s := testStore(t, failingQuota{})
	_, err := s.Save(context.Background(), 1, store.TierLong, "x y", "", "")
	assert.Error(t, err)
}

func TestLoadContext(t *testing.T) {
	s := testStore(t, fixedQuota{Short: 1, Medium: 2, Long: -1})
	ctx := context.Background()

	for _, e := range []struct {
		tier    store.Tier
		content string
	}{
		{store.TierLong, "lives in Osaka"},
		{store.TierLong, "writes Go daily"},
		{store.TierMedium, "planning a trip"},
		{store.TierShort, "asked about trains"},
	} {
		require.NoError(t, s.DB.InsertMemory(ctx, &store.MemoryEntry{
			OwnerID: 1, Tier: e.tier, Content: e.content, ExpiresAt: s.expiry(e.tier, time.Now()),
		}))
	}
	// Over quota in storage: only the newest survives truncation.
	require.NoError(t, s.DB.InsertMemory(ctx, &store.MemoryEntry{OwnerID: 1, Tier: store.TierShort, Content: "asked about buses"}))

	mc, err := s.LoadContext(ctx, 1, []string{"hi", "hello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"writes Go daily", "lives in Osaka"}, mc.LTM)
	assert.Equal(t, []string{"planning a trip"}, mc.MTM)
	assert.Equal(t, []string{"hi", "hello", "asked about buses"}, mc.STM)
}

func TestLoadContextDisabledTiers(t *testing.T) {
	s := testStore(t, fixedQuota{Short: 0, Medium: 0, Long: 0})
	ctx := context.Background()
	require.NoError(t, s.DB.InsertMemory(ctx, &store.MemoryEntry{OwnerID: 1, Tier: store.TierLong, Content: "kept from an older plan"}))

	mc, err := s.LoadContext(ctx, 1, []string{"hi"})
	require.NoError(t, err)
	assert.Empty(t, mc.LTM)
	assert.Empty(t, mc.MTM)
	assert.Equal(t, []string{"hi"}, mc.STM)
}

func TestStatsWithPlan(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	lookup, err := quota.New(db, nil, quota.Free)
	require.NoError(t, err)
	s := New(db, lookup, nil)
	ctx := context.Background()

	require.NoError(t, lookup.SetPlan(ctx, 1, quota.Basic))
	ok, err := s.Save(ctx, 1, store.TierLong, "likes jazz", "", "")
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := s.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, quota.Basic, stats.Plan)
	assert.Equal(t, []TierStats{
		{Tier: store.TierLong, Count: 1, Limit: 5},
		{Tier: store.TierMedium, Count: 0, Limit: 20},
		{Tier: store.TierShort, Count: 0, Limit: 50},
	}, stats.Tiers)

	// Free owners cannot keep long entries at all.
	ok, err = s.Save(ctx, 2, store.TierLong, "likes jazz", "", "")
	require.NoError(t, err)
	assert.False(t, ok)
}
