package storage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/indexer/internal/common"
)

func newTestConnector(t *testing.T) *MemoryConnector {
	t.Helper()
	mem, err := NewMemoryConnector(nil)
	require.NoError(t, err)
	return mem
}

func TestUpdateBlockRecordGuardsOnCurrentStatus(t *testing.T) {
	mem := newTestConnector(t)
	require.NoError(t, mem.InsertBlockRecord(&common.BlockRecord{
		BlockNumber: 7,
		Status:      common.StatusPending,
	}))

	// the guard rejects a transition whose precondition does not hold
	updated, err := mem.UpdateBlockRecord(7,
		[]common.ProcessingStatus{common.StatusProcessing},
		BlockStatusUpdate{Status: common.StatusProcessed})
	require.NoError(t, err)
	assert.False(t, updated)

	record, err := mem.GetBlockRecord(7)
	require.NoError(t, err)
	assert.Equal(t, common.StatusPending, record.Status)

	// and admits one whose precondition does
	count := uint64(3)
	updated, err = mem.UpdateBlockRecord(7,
		[]common.ProcessingStatus{common.StatusPending},
		BlockStatusUpdate{Status: common.StatusProcessed, EventCount: &count})
	require.NoError(t, err)
	assert.True(t, updated)

	record, err = mem.GetBlockRecord(7)
	require.NoError(t, err)
	assert.Equal(t, common.StatusProcessed, record.Status)
	assert.Equal(t, uint64(3), record.EventCount)
}

func TestUpdateBlockRecordUnknownBlock(t *testing.T) {
	mem := newTestConnector(t)
	updated, err := mem.UpdateBlockRecord(99,
		[]common.ProcessingStatus{common.StatusPending},
		BlockStatusUpdate{Status: common.StatusProcessing})
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestGetBlockRecordAbsentIsNilNil(t *testing.T) {
	mem := newTestConnector(t)
	record, err := mem.GetBlockRecord(1)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestInsertDomainEventsDeduplicatesByContentID(t *testing.T) {
	mem := newTestConnector(t)
	ctx := context.Background()

	event := &common.Position{
		PoolAddress:    "0xpool",
		Holder:         "0xholder",
		BinID:          42,
		BaseAmount:     big.NewInt(1),
		QuoteAmount:    big.NewInt(2),
		ReceiptAmount:  big.NewInt(3),
		Sign:           1,
		TxHash:         "0xabc",
		BlockTimestamp: time.Unix(1700000000, 0),
	}
	byTx := map[string][]common.DomainEvent{"0xabc": {event}}

	require.NoError(t, mem.InsertDomainEvents(ctx, 9, byTx))
	require.NoError(t, mem.InsertDomainEvents(ctx, 9, byTx))
	assert.Equal(t, 1, mem.DomainEventCount())

	// a different bin is a different event
	other := *event
	other.BinID = 43
	require.NoError(t, mem.InsertDomainEvents(ctx, 9, map[string][]common.DomainEvent{"0xabc": {&other}}))
	assert.Equal(t, 2, mem.DomainEventCount())
}

func TestRawBlockRoundtrip(t *testing.T) {
	mem := newTestConnector(t)
	ctx := context.Background()

	block := &common.RawBlock{
		Number:    11,
		Hash:      "0xhash",
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Logs: []common.RawLog{
			{BlockNumber: 11, TransactionHash: "0xabc", LogIndex: 0, Address: "0xpool"},
		},
	}

	path, err := mem.SaveRawBlock(ctx, block)
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	loaded, err := mem.LoadRawBlock(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, block.Number, loaded.Number)
	assert.Equal(t, block.Hash, loaded.Hash)
	require.Len(t, loaded.Logs, 1)
	assert.Equal(t, "0xabc", loaded.Logs[0].TransactionHash)

	_, err = mem.LoadRawBlock(ctx, 12)
	assert.ErrorIs(t, err, common.ErrBlockNotFound)
}

func TestAvailableBlocksTracking(t *testing.T) {
	mem := newTestConnector(t)
	ctx := context.Background()

	for _, n := range []uint64{2, 8, 5} {
		_, err := mem.SaveRawBlock(ctx, &common.RawBlock{Number: n})
		require.NoError(t, err)
	}

	available, err := mem.GetAvailableBlocks(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 5, 8}, available)

	available, err = mem.GetAvailableBlocks(ctx, 3, 7)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, available)

	max, err := mem.MaxAvailableBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), max)

	exists, err := mem.RawBlockExists(ctx, 5)
	require.NoError(t, err)
	assert.True(t, exists)
}
