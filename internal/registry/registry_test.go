package registry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/indexer/internal/common"
	"github.com/dexlens/indexer/internal/storage"
)

func newTestRegistry(t *testing.T) (*BlockRegistry, *storage.MemoryConnector) {
	t.Helper()
	mem, err := storage.NewMemoryConnector(nil)
	require.NoError(t, err)
	return NewBlockRegistry(mem, mem, zerolog.Nop()), mem
}

func TestRegisterCreatesPendingRecordOnce(t *testing.T) {
	r, _ := newTestRegistry(t)
	ts := time.Unix(1700000000, 0)

	require.NoError(t, r.Register(100, "0xhash", "0xparent", ts))

	record, err := r.Get(100)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, common.StatusPending, record.Status)

	// advancing the status then re-registering must not reset it
	require.NoError(t, r.UpdateStatus(100, common.StatusProcessing))
	require.NoError(t, r.Register(100, "0xhash", "0xparent", ts))

	record, err = r.Get(100)
	require.NoError(t, err)
	assert.Equal(t, common.StatusProcessing, record.Status)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(5, "0xhash", "0xparent", time.Now()))

	require.NoError(t, r.UpdateStatus(5, common.StatusProcessing))
	require.NoError(t, r.UpdateStatus(5, common.StatusProcessed,
		WithStoragePath(common.StorageTypeMemory, "raw_block:5"),
		WithEventCount(12)))

	record, err := r.Get(5)
	require.NoError(t, err)
	assert.Equal(t, common.StatusProcessed, record.Status)
	assert.Equal(t, common.StorageTypeMemory, record.StorageType)
	assert.Equal(t, "raw_block:5", record.Path)
	assert.Equal(t, uint64(12), record.EventCount)
}

func TestClaimIsExclusive(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(9, "0xhash", "0xparent", time.Now()))

	require.NoError(t, r.UpdateStatus(9, common.StatusProcessing))

	// a second claim on an already claimed block must lose the compare-and-set
	err := r.UpdateStatus(9, common.StatusProcessing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lost the compare-and-set")

	record, getErr := r.Get(9)
	require.NoError(t, getErr)
	assert.Equal(t, common.StatusProcessing, record.Status)
}

func TestProcessedStatusIsImmutable(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(5, "0xhash", "0xparent", time.Now()))
	require.NoError(t, r.UpdateStatus(5, common.StatusProcessed))

	err := r.UpdateStatus(5, common.StatusFailed, WithError("should not happen"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already PROCESSED")

	record, getErr := r.Get(5)
	require.NoError(t, getErr)
	assert.Equal(t, common.StatusProcessed, record.Status)
	assert.Empty(t, record.Error)
}

func TestUpdateStatusRejectsUnregisteredBlock(t *testing.T) {
	r, _ := newTestRegistry(t)
	err := r.UpdateStatus(42, common.StatusProcessing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered")
}

func TestFailedBlockCanBeRetried(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(7, "0xhash", "0xparent", time.Now()))
	require.NoError(t, r.UpdateStatus(7, common.StatusFailed, WithError("decode stage: boom")))

	record, err := r.Get(7)
	require.NoError(t, err)
	assert.Equal(t, "decode stage: boom", record.Error)

	// a retry claims the block again and the error is cleared on success
	require.NoError(t, r.UpdateStatus(7, common.StatusProcessing))
	require.NoError(t, r.UpdateStatus(7, common.StatusProcessed))

	record, err = r.Get(7)
	require.NoError(t, err)
	assert.Equal(t, common.StatusProcessed, record.Status)
	assert.Empty(t, record.Error)
}

func TestGetMissingBlocksFindsGaps(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, n := range []uint64{10, 11, 13, 15} {
		require.NoError(t, r.Register(n, "0xhash", "0xparent", time.Now()))
	}

	missing, err := r.GetMissingBlocks(10, 15)
	require.NoError(t, err)
	assert.Equal(t, []uint64{12, 14}, missing)

	// a fully covered range has no gaps
	missing, err = r.GetMissingBlocks(10, 11)
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = r.GetMissingBlocks(15, 10)
	assert.Error(t, err)
}

func TestGetBlocksByStatus(t *testing.T) {
	r, _ := newTestRegistry(t)
	for n := uint64(1); n <= 5; n++ {
		require.NoError(t, r.Register(n, "0xhash", "0xparent", time.Now()))
	}
	require.NoError(t, r.UpdateStatus(2, common.StatusFailed, WithError("boom")))
	require.NoError(t, r.UpdateStatus(4, common.StatusFailed, WithError("boom")))

	failed, err := r.GetBlocksByStatus(common.StatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, uint64(2), failed[0].BlockNumber)
	assert.Equal(t, uint64(4), failed[1].BlockNumber)

	limited, err := r.GetBlocksByStatus(common.StatusFailed, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetAvailableBlocksReflectsRawStorage(t *testing.T) {
	r, mem := newTestRegistry(t)
	ctx := context.Background()

	for _, n := range []uint64{3, 5} {
		_, err := mem.SaveRawBlock(ctx, &common.RawBlock{Number: n})
		require.NoError(t, err)
	}

	available, err := r.GetAvailableBlocks(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 5}, available)
}
