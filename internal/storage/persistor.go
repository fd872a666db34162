package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dexlens/indexer/internal/common"
)

// Persistor is the pipeline's persistence collaborator: domain events go to
// main storage, raw events come back out of the raw archive for replay.
type Persistor struct {
	main IMainStorage
	raw  IRawStorage
}

func NewPersistor(main IMainStorage, raw IRawStorage) *Persistor {
	return &Persistor{main: main, raw: raw}
}

// PersistBlockEvents receives the full BlockData, not just the events, so
// downstream aggregates can be updated within the same call boundary.
func (p *Persistor) PersistBlockEvents(ctx context.Context, blockNumber uint64, eventsByTx map[string][]common.DomainEvent, data *common.BlockData) error {
	if err := p.main.InsertDomainEvents(ctx, blockNumber, eventsByTx); err != nil {
		return fmt.Errorf("failed to persist events for block %d: %w", blockNumber, err)
	}
	return nil
}

func (p *Persistor) PersistTransactionEvents(ctx context.Context, txHash string, events []common.DomainEvent) error {
	if err := p.main.InsertTransactionEvents(ctx, txHash, events); err != nil {
		return fmt.Errorf("failed to persist events for transaction %s: %w", txHash, err)
	}
	return nil
}

func (p *Persistor) LoadBlockRawEvents(ctx context.Context, blockNumber uint64) ([]common.RawLog, error) {
	block, err := p.raw.LoadRawBlock(ctx, blockNumber)
	if err != nil {
		return nil, err
	}
	return block.Logs, nil
}

func (p *Persistor) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	block, err := p.raw.LoadRawBlock(ctx, blockNumber)
	if err != nil {
		return time.Time{}, err
	}
	return block.Timestamp, nil
}
