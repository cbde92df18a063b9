package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/kura/internal/store"
)

func TestConsolidateNothingTemporary(t *testing.T) {
	e := testEngine(t)
	project(t, e, 1, "Solid")

	res, err := e.ConsolidateTemporaryProjects(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ConsolidationResult{}, res)

	projects, err := e.DB.ListProjects(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Len(t, projects, 1, "no default project created when there is nothing to fold")
}

func TestConsolidateTemporaryProjects(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	now := time.UnixMilli(1_800_000_000_000)
	at(e, now)

	temp, err := e.DB.CreateProject(ctx, 1, "Research - maybe", true)
	require.NoError(t, err)
	other, err := e.DB.CreateProject(ctx, 1, "Dev - perhaps", true)
	require.NoError(t, err)
	solid := project(t, e, 1, "Solid")

	a := room(t, e, 1, "a", &temp.ID)
	b := room(t, e, 1, "b", &temp.ID)
	pinned := room(t, e, 1, "pinned", &temp.ID)
	require.NoError(t, e.DB.LockRoom(ctx, 1, pinned.ID, nil))
	c := room(t, e, 1, "c", &other.ID)
	untouched := room(t, e, 1, "untouched", &solid.ID)

	res, err := e.ConsolidateTemporaryProjects(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ConsolidationResult{Consolidated: 2, Merged: 3}, res)

	def, err := e.DB.GetOrCreateDefaultProject(ctx, 1, "ignored")
	require.NoError(t, err)
	for _, id := range []int64{a.ID, b.ID, c.ID} {
		r := getRoom(t, e, 1, id)
		assert.Equal(t, def.ID, *r.ProjectID)
		assert.Equal(t, 0.5, *r.Confidence)
		assert.Equal(t, now.UnixMilli(), *r.LastClassifiedAt)
	}

	assert.Equal(t, temp.ID, *getRoom(t, e, 1, pinned.ID).ProjectID, "manual room stays put")
	assert.Equal(t, solid.ID, *getRoom(t, e, 1, untouched.ID).ProjectID)

	// Projects survive with the flag cleared.
	for _, id := range []int64{temp.ID, other.ID} {
		assert.False(t, getProject(t, e, 1, id).Temporary)
	}

	again, err := e.ConsolidateTemporaryProjects(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ConsolidationResult{}, again)
}

func TestConsolidateKeepsMemories(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	temp, err := e.DB.CreateProject(ctx, 1, "Temp", true)
	require.NoError(t, err)
	room(t, e, 1, "a", &temp.ID)
	require.NoError(t, e.DB.InsertMemory(ctx, &store.MemoryEntry{OwnerID: 1, Tier: store.TierLong, Content: "prefers tea"}))

	_, err = e.ConsolidateTemporaryProjects(ctx, 1)
	require.NoError(t, err)

	n, err := e.DB.CountLiveMemories(ctx, 1, store.TierLong, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConsolidateScopedToOwner(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	theirs, err := e.DB.CreateProject(ctx, 2, "Theirs", true)
	require.NoError(t, err)
	room(t, e, 2, "a", &theirs.ID)

	res, err := e.ConsolidateTemporaryProjects(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ConsolidationResult{}, res)
	assert.True(t, getProject(t, e, 2, theirs.ID).Temporary)
}
