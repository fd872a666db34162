package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
	"github.com/dexlens/indexer/internal/metrics"
	"github.com/dexlens/indexer/internal/registry"
)

const (
	defaultRetryInterval = 5000
	defaultRetriesPerRun = 10
)

// Retryer periodically rediscovers work the registry knows was never
// finished: blocks marked FAILED by an earlier invocation and numbers
// missing from the registry entirely (a crash mid-range), and re-runs them.
type Retryer struct {
	runner       *Runner
	registry     *registry.BlockRegistry
	interval     time.Duration
	blocksPerRun int
	logger       zerolog.Logger
}

func NewRetryer(runner *Runner, blockRegistry *registry.BlockRegistry, cfg config.RetryerConfig, logger zerolog.Logger) *Retryer {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultRetryInterval
	}
	blocksPerRun := cfg.BlocksPerRun
	if blocksPerRun == 0 {
		blocksPerRun = defaultRetriesPerRun
	}
	return &Retryer{
		runner:       runner,
		registry:     blockRegistry,
		interval:     time.Duration(interval) * time.Millisecond,
		blocksPerRun: blocksPerRun,
		logger:       logger,
	}
}

func (r *Retryer) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Debug().Msg("retryer started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("retryer shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil {
				if errors.Is(err, common.ErrRegistryUnavailable) {
					r.logger.Error().Err(err).Msg("registry unavailable, halting retryer")
					return err
				}
				r.logger.Error().Err(err).Msg("retry iteration failed")
			}
		}
	}
}

func (r *Retryer) runOnce(ctx context.Context) error {
	candidates, err := r.collectCandidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}
	r.logger.Info().Int("count", len(candidates)).Msg("retrying blocks")
	return r.runner.ProcessBlocks(ctx, candidates, true)
}

func (r *Retryer) collectCandidates(ctx context.Context) ([]uint64, error) {
	failed, err := r.registry.GetBlocksByStatus(common.StatusFailed, r.blocksPerRun)
	if err != nil {
		return nil, err
	}

	candidates := make([]uint64, 0, r.blocksPerRun)
	seen := map[uint64]struct{}{}
	for _, record := range failed {
		candidates = append(candidates, record.BlockNumber)
		seen[record.BlockNumber] = struct{}{}
	}

	if len(candidates) < r.blocksPerRun {
		missing, err := r.findMissing(ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range missing {
			if len(candidates) >= r.blocksPerRun {
				break
			}
			if _, ok := seen[n]; !ok {
				candidates = append(candidates, n)
			}
		}
	}
	return candidates, nil
}

// findMissing scans the span between the runner's configured start and the
// highest block with raw data for numbers absent from the registry.
func (r *Retryer) findMissing(ctx context.Context) ([]uint64, error) {
	available, err := r.registry.GetAvailableBlocks(ctx, r.runner.fromBlock, ^uint64(0))
	if err != nil || len(available) == 0 {
		return nil, err
	}
	end := available[len(available)-1]
	missing, err := r.registry.GetMissingBlocks(r.runner.fromBlock, end)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		metrics.GapCounter.Inc()
		r.logger.Warn().Int("count", len(missing)).Uint64("first", missing[0]).Msg("gap detected in registry")
	}
	return missing, nil
}
