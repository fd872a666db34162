package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexlens/indexer/internal/common"
	"github.com/dexlens/indexer/internal/storage"
)

// BlockRegistry is the single source of truth for whether a block has
// reached a terminal, durable state. Store errors always propagate to the
// caller; the pipeline's correctness depends on registry writes being
// observable.
type BlockRegistry struct {
	store  storage.IRegistryStorage
	raw    storage.IRawStorage
	logger zerolog.Logger
}

func NewBlockRegistry(store storage.IRegistryStorage, raw storage.IRawStorage, logger zerolog.Logger) *BlockRegistry {
	return &BlockRegistry{store: store, raw: raw, logger: logger}
}

// Register creates a PENDING record for the block if none exists. Calling
// it again for a known block is a no-op.
func (r *BlockRegistry) Register(blockNumber uint64, blockHash, parentHash string, timestamp time.Time) error {
	existing, err := r.store.GetBlockRecord(blockNumber)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	record := &common.BlockRecord{
		BlockNumber: blockNumber,
		BlockHash:   blockHash,
		ParentHash:  parentHash,
		Timestamp:   timestamp,
		Status:      common.StatusPending,
	}
	if err := r.store.InsertBlockRecord(record); err != nil {
		return err
	}
	r.logger.Debug().Uint64("block", blockNumber).Msg("registered block")
	return nil
}

// Get returns the record for a block, or nil when none exists.
func (r *BlockRegistry) Get(blockNumber uint64) (*common.BlockRecord, error) {
	return r.store.GetBlockRecord(blockNumber)
}

// UpdateOption sets optional metadata on a status transition.
type UpdateOption func(*storage.BlockStatusUpdate)

func WithStoragePath(storageType common.StorageType, path string) UpdateOption {
	return func(u *storage.BlockStatusUpdate) {
		u.StorageType = storageType
		u.Path = path
	}
}

func WithError(message string) UpdateOption {
	return func(u *storage.BlockStatusUpdate) { u.Error = message }
}

func WithEventCount(count uint64) UpdateOption {
	return func(u *storage.BlockStatusUpdate) { u.EventCount = &count }
}

// UpdateStatus transitions a block's status under a compare-and-set guard.
// No transition ever leaves PROCESSED; attempting one returns an error so a
// crash-retry pass cannot overwrite a completed block. A claim to PROCESSING
// only succeeds from PENDING or FAILED, so two invocations racing for the
// same block cannot both win it.
func (r *BlockRegistry) UpdateStatus(blockNumber uint64, status common.ProcessingStatus, opts ...UpdateOption) error {
	update := storage.BlockStatusUpdate{Status: status}
	for _, opt := range opts {
		opt(&update)
	}

	allowedFrom := []common.ProcessingStatus{
		common.StatusPending,
		common.StatusProcessing,
		common.StatusFailed,
	}
	if status == common.StatusProcessing {
		allowedFrom = []common.ProcessingStatus{
			common.StatusPending,
			common.StatusFailed,
		}
	}
	updated, err := r.store.UpdateBlockRecord(blockNumber, allowedFrom, update)
	if err != nil {
		return err
	}
	if !updated {
		record, err := r.store.GetBlockRecord(blockNumber)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("cannot update status of unregistered block %d", blockNumber)
		}
		if record.Status == common.StatusProcessed {
			// terminal success state is immutable
			return fmt.Errorf("block %d is already PROCESSED, refusing transition to %s", blockNumber, status)
		}
		return fmt.Errorf("block %d status update to %s lost the compare-and-set race", blockNumber, status)
	}
	return nil
}

// GetMissingBlocks finds every number in [start, end] with no record, by
// set difference against the recorded numbers. This is how gaps left by a
// crash mid-range are rediscovered without extra bookkeeping.
func (r *BlockRegistry) GetMissingBlocks(start, end uint64) ([]uint64, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range [%d, %d]", start, end)
	}
	recorded, err := r.store.GetBlockNumbersInRange(start, end)
	if err != nil {
		return nil, err
	}
	present := make(map[uint64]struct{}, len(recorded))
	for _, n := range recorded {
		present[n] = struct{}{}
	}
	missing := []uint64{}
	for n := start; n <= end; n++ {
		if _, ok := present[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

// GetBlocksByStatus returns up to limit records in the given status, used to
// find retry candidates (FAILED) or backlog (PENDING).
func (r *BlockRegistry) GetBlocksByStatus(status common.ProcessingStatus, limit int) ([]common.BlockRecord, error) {
	return r.store.GetBlockRecordsByStatus(status, limit)
}

// GetAvailableBlocks returns the numbers for which raw data is durably
// stored, regardless of processing status. Passive and replay sources rely
// on this instead of a live node.
func (r *BlockRegistry) GetAvailableBlocks(ctx context.Context, start, end uint64) ([]uint64, error) {
	return r.raw.GetAvailableBlocks(ctx, start, end)
}
