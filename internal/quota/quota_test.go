package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/kura/internal/store"
)

func newLookup(t *testing.T, overrides map[string]Limits, fallback string) (*Lookup, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l, err := New(db, overrides, fallback)
	require.NoError(t, err)
	return l, db
}

func TestPlanTable(t *testing.T) {
	plans := DefaultPlans()

	assert.Equal(t, Limits{Short: -1, Medium: -1, Long: -1}, plans[Founder])
	assert.Equal(t, Limits{Short: -1, Medium: -1, Long: -1}, plans[Pro])
	assert.Equal(t, Limits{Short: 50, Medium: 20, Long: 5}, plans[Basic])
	assert.Equal(t, Limits{Short: 10, Medium: 5, Long: 0}, plans[Free])
}

func TestQuotaFallsBackToDefaultPlan(t *testing.T) {
	l, _ := newLookup(t, nil, "")
	ctx := context.Background()

	name, limits, err := l.Plan(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, Free, name)
	assert.Equal(t, 0, limits.Long)

	q, err := l.Quota(ctx, 42, store.TierMedium)
	require.NoError(t, err)
	assert.Equal(t, 5, q)
}

func TestQuotaUsesOwnerPlan(t *testing.T) {
	l, db := newLookup(t, nil, Free)
	ctx := context.Background()

	require.NoError(t, l.SetPlan(ctx, 7, Basic))
	q, err := l.Quota(ctx, 7, store.TierShort)
	require.NoError(t, err)
	assert.Equal(t, 50, q)

	// A stale plan name in the table resolves to the fallback.
	require.NoError(t, db.SetOwnerPlan(ctx, 8, "legacy"))
	name, _, err := l.Plan(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, Free, name)
}

func TestSetPlanRejectsUnknown(t *testing.T) {
	l, _ := newLookup(t, nil, "")
	assert.Error(t, l.SetPlan(context.Background(), 1, "platinum"))
}

func TestOverrides(t *testing.T) {
	l, _ := newLookup(t, map[string]Limits{
		Free:   {Short: 3, Medium: 1, Long: 1},
		"team": {Short: -1, Medium: 100, Long: 50},
	}, "team")
	ctx := context.Background()

	assert.True(t, l.Known("team"))
	assert.Equal(t, []string{Basic, Founder, Free, Pro, "team"}, l.Names())

	q, err := l.Quota(ctx, 1, store.TierMedium)
	require.NoError(t, err)
	assert.Equal(t, 100, q)

	require.NoError(t, l.SetPlan(ctx, 2, Free))
	q, err = l.Quota(ctx, 2, store.TierLong)
	require.NoError(t, err)
	assert.Equal(t, 1, q)
}

func TestNewRejectsUnknownFallback(t *testing.T) {
	_, err := New(nil, nil, "gold")
	assert.Error(t, err)
}

func TestLimitsForUnknownTier(t *testing.T) {
	assert.Equal(t, 0, Limits{Short: 1, Medium: 2, Long: 3}.For(store.Tier("x")))
}
