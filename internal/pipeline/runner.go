package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
	"github.com/dexlens/indexer/internal/metrics"
	"github.com/dexlens/indexer/internal/registry"
	"github.com/dexlens/indexer/internal/source"
)

const (
	defaultRunnerInterval = 2000
	defaultBlocksPerRun   = 10
	defaultParallelBlocks = 4
)

// Runner drives continuous processing across a block range. Blocks run
// concurrently, each block's stages strictly in order; cancellation takes
// effect between block boundaries only. Per-block failures are recorded and
// the batch continues; a systemic registry error halts the run instead of
// marking every block falsely FAILED.
type Runner struct {
	src            source.Source
	manager        *Manager
	registry       *registry.BlockRegistry
	interval       time.Duration
	blocksPerRun   int
	parallelBlocks int
	fromBlock      uint64
	untilBlock     uint64
	nextBlock      uint64
	logger         zerolog.Logger
}

func NewRunner(src source.Source, manager *Manager, blockRegistry *registry.BlockRegistry, cfg config.RunnerConfig, logger zerolog.Logger) *Runner {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultRunnerInterval
	}
	blocksPerRun := cfg.BlocksPerRun
	if blocksPerRun == 0 {
		blocksPerRun = defaultBlocksPerRun
	}
	parallelBlocks := cfg.ParallelBlocks
	if parallelBlocks == 0 {
		parallelBlocks = defaultParallelBlocks
	}

	return &Runner{
		src:            src,
		manager:        manager,
		registry:       blockRegistry,
		interval:       time.Duration(interval) * time.Millisecond,
		blocksPerRun:   blocksPerRun,
		parallelBlocks: parallelBlocks,
		fromBlock:      uint64(cfg.FromBlock),
		untilBlock:     uint64(cfg.UntilBlock),
		nextBlock:      uint64(cfg.FromBlock),
		logger:         logger,
	}
}

// Start loops until the context is cancelled or the configured until-block
// is passed.
func (r *Runner) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Debug().Msg("runner started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("runner shutting down")
			return ctx.Err()
		case <-ticker.C:
			done, err := r.runOnce(ctx)
			if err != nil {
				if errors.Is(err, common.ErrRegistryUnavailable) {
					r.logger.Error().Err(err).Msg("registry unavailable, halting run")
					return err
				}
				r.logger.Error().Err(err).Msg("run iteration failed")
				continue
			}
			if done {
				r.logger.Info().Uint64("until", r.untilBlock).Msg("reached configured end block, runner complete")
				return nil
			}
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) (done bool, err error) {
	latest, err := r.src.FetchLatestBlock(ctx)
	if err != nil {
		if errors.Is(err, common.ErrBlockNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("fetching latest block: %w", err)
	}

	end := latest.Number
	if r.untilBlock > 0 && end > r.untilBlock {
		end = r.untilBlock
	}
	if r.nextBlock > end {
		return r.untilBlock > 0 && r.nextBlock > r.untilBlock, nil
	}

	batchEnd := r.nextBlock + uint64(r.blocksPerRun) - 1
	if batchEnd > end {
		batchEnd = end
	}

	numbers := make([]uint64, 0, batchEnd-r.nextBlock+1)
	for n := r.nextBlock; n <= batchEnd; n++ {
		numbers = append(numbers, n)
	}

	if err := r.ProcessBlocks(ctx, numbers, false); err != nil {
		return false, err
	}
	r.nextBlock = batchEnd + 1
	return r.untilBlock > 0 && r.nextBlock > r.untilBlock, nil
}

// ProcessBlocks runs a set of blocks with bounded concurrency, reporting
// per-block outcomes. Only a systemic registry error is returned.
func (r *Runner) ProcessBlocks(ctx context.Context, blockNumbers []uint64, force bool) error {
	sem := make(chan struct{}, r.parallelBlocks)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var systemic error

	for _, blockNumber := range blockNumbers {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(n uint64) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := r.ProcessOne(ctx, n, force); err != nil && errors.Is(err, common.ErrRegistryUnavailable) {
				mu.Lock()
				if systemic == nil {
					systemic = err
				}
				mu.Unlock()
			}
		}(blockNumber)
	}
	wg.Wait()
	return systemic
}

// ProcessOne carries one block from fetch to a terminal registry state.
// Stage errors mark the block FAILED and are returned for reporting; the
// returned error wraps ErrRegistryUnavailable only when the registry itself
// failed.
func (r *Runner) ProcessOne(ctx context.Context, blockNumber uint64, force bool) error {
	block, err := r.src.FetchBlock(ctx, blockNumber)
	if err != nil {
		r.logger.Error().Err(err).Uint64("block", blockNumber).Msg("failed to fetch block")
		return err
	}

	path, err := r.src.SaveRawBlock(ctx, block)
	if err != nil {
		r.logger.Error().Err(err).Uint64("block", blockNumber).Msg("failed to archive raw block")
		return err
	}

	if err := r.registry.Register(blockNumber, block.Hash, block.ParentHash, block.Timestamp); err != nil {
		return err
	}

	record, err := r.registry.Get(blockNumber)
	if err != nil {
		return err
	}
	if record != nil && record.Status == common.StatusProcessed {
		if !force {
			r.logger.Debug().Uint64("block", blockNumber).Msg("block already processed, skipping")
			return nil
		}
		// PROCESSED is immutable, so a forced re-run replays the block
		// without touching the record; persistence is an upsert
		_, err := r.manager.ProcessBlock(ctx, blockNumber, block.Timestamp, block.Logs)
		return err
	}

	if err := r.registry.UpdateStatus(blockNumber, common.StatusProcessing); err != nil {
		if errors.Is(err, common.ErrRegistryUnavailable) {
			return err
		}
		// lost the claim to a concurrent invocation
		r.logger.Debug().Err(err).Uint64("block", blockNumber).Msg("could not claim block, skipping")
		return nil
	}

	data, err := r.manager.ProcessBlock(ctx, blockNumber, block.Timestamp, block.Logs)
	if err != nil {
		if updateErr := r.registry.UpdateStatus(blockNumber, common.StatusFailed,
			registry.WithError(err.Error())); updateErr != nil {
			return updateErr
		}
		r.logger.Warn().Err(err).Uint64("block", blockNumber).Msg("block marked FAILED")
		return err
	}

	if err := r.registry.UpdateStatus(blockNumber, common.StatusProcessed,
		registry.WithStoragePath(storageTypeForPath(path), path),
		registry.WithEventCount(data.EventCount())); err != nil {
		return err
	}
	return nil
}

// RetryBlock re-runs a FAILED or missing block, forcing reprocessing.
func (r *Runner) RetryBlock(ctx context.Context, blockNumber uint64) error {
	metrics.RetriedBlocks.Inc()
	return r.ProcessOne(ctx, blockNumber, true)
}

func storageTypeForPath(path string) common.StorageType {
	if len(path) >= 5 && path[:5] == "s3://" {
		return common.StorageTypeS3
	}
	return common.StorageTypeMemory
}
