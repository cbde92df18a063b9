package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/kura/internal/store"
)

func medium(t *testing.T, s *Store, ownerID int64, content, importance, category string) int64 {
	t.Helper()
	exp := s.now().Add(time.Hour).UnixMilli()
	e := store.MemoryEntry{OwnerID: ownerID, Tier: store.TierMedium, Content: content,
		Importance: importance, Category: category, ExpiresAt: &exp}
	require.NoError(t, s.DB.InsertMemory(context.Background(), &e))
	return e.ID
}

func longEntries(t *testing.T, s *Store, ownerID int64) []store.MemoryEntry {
	t.Helper()
	entries, err := s.DB.ListLiveMemories(context.Background(), ownerID, store.TierLong, s.now(), 0)
	require.NoError(t, err)
	return entries
}

func TestPromote(t *testing.T) {
	s := testStore(t, unlimited)
	ctx := context.Background()
	id := medium(t, s, 1, "deploys on fridays", "low", "habits")

	ok, err := s.Promote(ctx, 1, id)
	require.NoError(t, err)
	assert.True(t, ok)

	long := longEntries(t, s, 1)
	require.Len(t, long, 1)
	assert.Equal(t, "deploys on fridays", long[0].Content)
	assert.Equal(t, "high", long[0].Importance)
	assert.Equal(t, "habits", long[0].Category)
	assert.Nil(t, long[0].ExpiresAt)

	src, err := s.DB.GetMemory(ctx, 1, id)
	require.NoError(t, err)
	require.NotNil(t, src, "source entry is kept")
	assert.Equal(t, store.TierMedium, src.Tier)

	// A second promotion refreshes the long entry instead of duplicating it.
	ok, err = s.Promote(ctx, 1, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, longEntries(t, s, 1), 1)
}

func TestPromoteRespectsLongQuota(t *testing.T) {
	s := testStore(t, fixedQuota{Short: -1, Medium: -1, Long: 0})
	id := medium(t, s, 1, "name is Sam", "high", "")

	ok, err := s.Promote(context.Background(), 1, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, longEntries(t, s, 1))
}

func TestPromoteLongEntryIsNoop(t *testing.T) {
	s := testStore(t, unlimited)
	ctx := context.Background()
	e := store.MemoryEntry{OwnerID: 1, Tier: store.TierLong, Content: "already kept"}
	require.NoError(t, s.DB.InsertMemory(ctx, &e))

	ok, err := s.Promote(ctx, 1, e.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, longEntries(t, s, 1), 1)
}

func TestPromoteNotFound(t *testing.T) {
	s := testStore(t, unlimited)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }
	id := medium(t, s, 1, "short lived", "", "")

	_, err := s.Promote(ctx, 2, id)
	assert.ErrorIs(t, err, ErrMemoryNotFound, "another owner's entry")

	_, err = s.Promote(ctx, 1, 9999)
	assert.ErrorIs(t, err, ErrMemoryNotFound)

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = s.Promote(ctx, 1, id)
	assert.ErrorIs(t, err, ErrMemoryNotFound, "expired entry")
}

func TestCompressNeedsFiveHighImportance(t *testing.T) {
	s := testStore(t, unlimited)
	for _, c := range []string{"uses vim", "uses tmux", "uses zsh", "uses fish"} {
		medium(t, s, 1, c, "high", "tools")
	}
	medium(t, s, 1, "uses emacs sometimes", "low", "tools")

	n, err := s.Compress(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, longEntries(t, s, 1))
}

func TestCompressGroupsByCategory(t *testing.T) {
	s := testStore(t, unlimited)
	ctx := context.Background()
	for _, c := range []string{"uses vim", "uses tmux", "uses zsh"} {
		medium(t, s, 1, c, "high", "tools")
	}
	medium(t, s, 1, "ships on fridays", "critical", "habits")
	medium(t, s, 1, "reviews every morning", "High", "habits")
	medium(t, s, 1, "skipped lunch", "low", "habits")

	n, err := s.Compress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "only the tools group reaches three entries")

	long := longEntries(t, s, 1)
	require.Len(t, long, 1)
	assert.Equal(t, "uses vim\nuses tmux\nuses zsh", long[0].Content)
	assert.Equal(t, "tools", long[0].Category)
	assert.Equal(t, "high", long[0].Importance)

	live, err := s.DB.CountLiveMemories(ctx, 1, store.TierMedium, s.now())
	require.NoError(t, err)
	assert.Equal(t, 6, live, "medium entries are kept")

	// Running again refreshes the same summary.
	_, err = s.Compress(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, longEntries(t, s, 1), 1)
}

func TestCompressRespectsLongQuota(t *testing.T) {
	s := testStore(t, fixedQuota{Short: -1, Medium: -1, Long: 0})
	for _, c := range []string{"uses vim", "uses tmux", "uses zsh", "uses git", "uses go"} {
		medium(t, s, 1, c, "high", "tools")
	}

	n, err := s.Compress(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, longEntries(t, s, 1))
}
