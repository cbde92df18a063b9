package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/kura/internal/store"
)

func TestRunMaintenanceCoversEveryOwner(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	at(e, time.Now().Add(40*day))

	r1 := room(t, e, 1, "one", nil)
	r2 := room(t, e, 2, "two", nil)
	temp, err := e.DB.CreateProject(ctx, 3, "Temp", true)
	require.NoError(t, err)

	require.NoError(t, e.RunMaintenance(ctx))

	assert.NotNil(t, getRoom(t, e, 1, r1.ID).LastClassifiedAt)
	assert.NotNil(t, getRoom(t, e, 2, r2.ID).LastClassifiedAt)
	assert.False(t, getProject(t, e, 3, temp.ID).Temporary)
}

type countingCompressor struct {
	owners []int64
	failOn int64
}

func (c *countingCompressor) Compress(_ context.Context, ownerID int64) (int, error) {
	c.owners = append(c.owners, ownerID)
	if ownerID == c.failOn {
		return 0, errors.New("compress failed")
	}
	return 0, nil
}

func TestRunMaintenanceCompressesMemories(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	c := &countingCompressor{failOn: 2}
	e.Memory = c

	room(t, e, 1, "one", nil)
	room(t, e, 2, "two", nil)
	require.NoError(t, e.DB.InsertMemory(ctx, &store.MemoryEntry{OwnerID: 4, Tier: store.TierLong, Content: "only memories"}))

	err := e.RunMaintenance(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner 2 compress")
	assert.Equal(t, []int64{1, 2, 4}, c.owners, "owners with only memories are compressed too")
}

func TestStartMaintenance(t *testing.T) {
	e := testEngine(t)

	assert.Error(t, e.StartMaintenance("not a schedule"))

	require.NoError(t, e.StartMaintenance("@every 1h"))
	assert.Error(t, e.StartMaintenance("@every 1h"), "second start is rejected")
	e.Stop()

	// Stop is idempotent and the schedule can be started again.
	e.Stop()
	require.NoError(t, e.StartMaintenance("*/5 * * * *"))
	e.Stop()
}
