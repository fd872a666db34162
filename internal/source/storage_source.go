package source

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dexlens/indexer/internal/common"
	"github.com/dexlens/indexer/internal/storage"
)

// StorageSource is a passive source: it serves blocks only from the raw
// archive, with no live node connection. Saving is a no-op returning the
// existing path, since the archive already holds the data.
type StorageSource struct {
	raw    storage.IRawStorage
	logger zerolog.Logger
}

func NewStorageSource(raw storage.IRawStorage, logger zerolog.Logger) *StorageSource {
	return &StorageSource{raw: raw, logger: logger}
}

func (s *StorageSource) FetchBlock(ctx context.Context, blockNumber uint64) (*common.RawBlock, error) {
	return s.raw.LoadRawBlock(ctx, blockNumber)
}

func (s *StorageSource) FetchLatestBlock(ctx context.Context) (*common.RawBlock, error) {
	max, err := s.raw.MaxAvailableBlock(ctx)
	if err != nil {
		return nil, err
	}
	if max == 0 {
		if exists, err := s.raw.RawBlockExists(ctx, 0); err != nil || !exists {
			if err != nil {
				return nil, err
			}
			return nil, common.ErrBlockNotFound
		}
	}
	return s.raw.LoadRawBlock(ctx, max)
}

func (s *StorageSource) RawBlockExists(ctx context.Context, blockNumber uint64) (bool, error) {
	return s.raw.RawBlockExists(ctx, blockNumber)
}

func (s *StorageSource) SaveRawBlock(ctx context.Context, block *common.RawBlock) (string, error) {
	exists, err := s.raw.RawBlockExists(ctx, block.Number)
	if err != nil {
		return "", err
	}
	if exists {
		return fmt.Sprintf("raw_block:%020d", block.Number), nil
	}
	return s.raw.SaveRawBlock(ctx, block)
}

// Scan walks every available block in [start, end] and notifies each
// listener once per block. A listener error is logged and the scan of the
// remaining blocks continues.
func (s *StorageSource) Scan(ctx context.Context, start, end uint64, listeners ...Listener) error {
	available, err := s.raw.GetAvailableBlocks(ctx, start, end)
	if err != nil {
		return fmt.Errorf("listing available blocks: %w", err)
	}
	for _, blockNumber := range available {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		block, err := s.raw.LoadRawBlock(ctx, blockNumber)
		if err != nil {
			s.logger.Error().Err(err).Uint64("block", blockNumber).Msg("failed to load available block, skipping")
			continue
		}
		path := fmt.Sprintf("raw_block:%020d", blockNumber)
		for _, listener := range listeners {
			if err := listener.OnNewBlock(blockNumber, block, path); err != nil {
				s.logger.Warn().Err(err).Uint64("block", blockNumber).Msg("listener failed, continuing scan")
			}
		}
	}
	return nil
}
