package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexlens/indexer/internal/common"
	"github.com/dexlens/indexer/internal/metrics"
	"github.com/dexlens/indexer/internal/transform"
)

// Decoder turns the raw log stream of a block into decoded logs grouped by
// transaction, each group in log-index order.
type Decoder interface {
	DecodeBlockEvents(ctx context.Context, rawLogs []common.RawLog) (map[string][]common.DecodedLog, error)
}

// Persistor writes domain events as idempotent upserts keyed by content
// identifier, and serves stored raw events back for replay.
type Persistor interface {
	PersistBlockEvents(ctx context.Context, blockNumber uint64, eventsByTx map[string][]common.DomainEvent, data *common.BlockData) error
	PersistTransactionEvents(ctx context.Context, txHash string, events []common.DomainEvent) error
	LoadBlockRawEvents(ctx context.Context, blockNumber uint64) ([]common.RawLog, error)
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

type invocationState int

const (
	stateInit invocationState = iota
	stateDecoding
	stateTransforming
	statePersisting
	stateDone
	stateFailed
)

func (s invocationState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateDecoding:
		return "decoding"
	case stateTransforming:
		return "transforming"
	case statePersisting:
		return "persisting"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// Manager carries a block through decode, transform and persist. Stage
// errors propagate to the caller, which is responsible for marking the
// block FAILED in the registry; hook errors never do.
type Manager struct {
	decoder          Decoder
	persistor        Persistor
	transformers     *transform.Registry
	hooks            *Hooks
	failOnValidation bool
	logger           zerolog.Logger
}

func NewManager(decoder Decoder, persistor Persistor, transformers *transform.Registry, hooks *Hooks, failOnValidation bool, logger zerolog.Logger) *Manager {
	if hooks == nil {
		hooks = NewHooks(logger)
	}
	return &Manager{
		decoder:          decoder,
		persistor:        persistor,
		transformers:     transformers,
		hooks:            hooks,
		failOnValidation: failOnValidation,
		logger:           logger,
	}
}

// Hooks exposes the subscription table so callers can register extension
// points before processing begins.
func (m *Manager) Hooks() *Hooks { return m.hooks }

// ProcessBlock runs the three stages in order. A stage only runs when the
// previous stage produced a non-empty result: a block with zero relevant
// events is valid and terminal, not an error, and never reaches the
// persistor.
func (m *Manager) ProcessBlock(ctx context.Context, blockNumber uint64, timestamp time.Time, rawLogs []common.RawLog) (*common.BlockData, error) {
	data := common.NewBlockData(blockNumber, timestamp, rawLogs)

	fail := func(state invocationState, err error) (*common.BlockData, error) {
		metrics.FailedBlocks.Inc()
		m.logger.Error().Err(err).Uint64("block", blockNumber).Str("state", state.String()).Msg("block invocation failed")
		return data, err
	}

	// decode
	m.hooks.Run(ctx, PreDecode, data)
	decodeStart := time.Now()
	decoded, err := m.decoder.DecodeBlockEvents(ctx, data.RawLogs)
	if err != nil {
		return fail(stateDecoding, fmt.Errorf("decode stage for block %d: %w", blockNumber, err))
	}
	metrics.StageDuration.WithLabelValues("decode").Observe(time.Since(decodeStart).Seconds())
	data.DecodedByTx = decoded
	data.TxOrder = txOrderFromRawLogs(data.RawLogs, decoded)
	m.hooks.Run(ctx, PostDecode, data)

	if len(data.DecodedByTx) == 0 {
		m.logger.Debug().Uint64("block", blockNumber).Msg("no relevant events decoded, completing without persist")
		return data, nil
	}

	// transform
	m.hooks.Run(ctx, PreTransform, data)
	transformStart := time.Now()
	if err := m.transformBlock(data); err != nil {
		return fail(stateTransforming, err)
	}
	metrics.StageDuration.WithLabelValues("transform").Observe(time.Since(transformStart).Seconds())
	m.hooks.Run(ctx, PostTransform, data)

	if data.EventCount() == 0 {
		m.logger.Debug().Uint64("block", blockNumber).Msg("no domain events produced, completing without persist")
		return data, nil
	}

	// persist
	m.hooks.Run(ctx, PrePersist, data)
	persistStart := time.Now()
	if err := m.persistor.PersistBlockEvents(ctx, blockNumber, data.DomainByTx, data); err != nil {
		return fail(statePersisting, fmt.Errorf("persist stage for block %d: %w", blockNumber, err))
	}
	metrics.StageDuration.WithLabelValues("persist").Observe(time.Since(persistStart).Seconds())
	m.hooks.Run(ctx, PostPersist, data)

	metrics.ProcessedBlocks.Inc()
	metrics.LastProcessedBlock.Set(float64(blockNumber))
	return data, nil
}

// ProcessTransaction is the narrow entry point for targeted repair of a
// single transaction. It bypasses block-level registry bookkeeping.
func (m *Manager) ProcessTransaction(ctx context.Context, txHash string, blockNumber uint64, rawLogs []common.RawLog, timestamp time.Time) ([]common.DomainEvent, error) {
	txLogs := make([]common.RawLog, 0, len(rawLogs))
	for _, l := range rawLogs {
		if l.TransactionHash == txHash {
			txLogs = append(txLogs, l)
		}
	}

	decoded, err := m.decoder.DecodeBlockEvents(ctx, txLogs)
	if err != nil {
		return nil, fmt.Errorf("decode stage for transaction %s: %w", txHash, err)
	}
	logs := decoded[txHash]
	if len(logs) == 0 {
		return nil, nil
	}

	events, procErrors := m.transformTransaction(txHash, timestamp, logs)
	if m.failOnValidation && len(procErrors) > 0 {
		return nil, fmt.Errorf("transform stage for transaction %s: %d validation errors", txHash, len(procErrors))
	}
	if len(events) == 0 {
		return nil, nil
	}

	if err := m.persistor.PersistTransactionEvents(ctx, txHash, events); err != nil {
		return nil, fmt.Errorf("persist stage for transaction %s: %w", txHash, err)
	}
	return events, nil
}

// ReplayBlock re-runs a block from its stored raw events. Safe to call
// repeatedly: content identifiers are deterministic, so persistence stays an
// upsert.
func (m *Manager) ReplayBlock(ctx context.Context, blockNumber uint64) (*common.BlockData, error) {
	rawLogs, err := m.persistor.LoadBlockRawEvents(ctx, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("loading raw events for block %d: %w", blockNumber, err)
	}
	timestamp, err := m.persistor.GetBlockTimestamp(ctx, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("loading timestamp for block %d: %w", blockNumber, err)
	}
	return m.ProcessBlock(ctx, blockNumber, timestamp, rawLogs)
}

func (m *Manager) transformBlock(data *common.BlockData) error {
	totalErrors := 0
	for _, txHash := range data.TxOrder {
		logs := data.DecodedByTx[txHash]
		if len(logs) == 0 {
			continue
		}
		events, procErrors := m.transformTransaction(txHash, data.BlockTimestamp, logs)
		if len(events) > 0 {
			data.DomainByTx[txHash] = events
		}
		for _, procError := range procErrors {
			data.Errors[procError.ErrorID] = procError
			totalErrors++
		}
	}
	if totalErrors > 0 {
		metrics.ValidationErrors.Add(float64(totalErrors))
		m.logger.Warn().Uint64("block", data.BlockNumber).Int("errors", totalErrors).Msg("collected validation errors during transform")
		if m.failOnValidation {
			return fmt.Errorf("transform stage for block %d: %d validation errors", data.BlockNumber, totalErrors)
		}
	}
	return nil
}

// transformTransaction groups one transaction's decoded logs by contract,
// resolves each contract's strategy and aggregates the outputs. Logs keep
// their on-chain order within each group so each log is attributed to
// exactly one aggregation pass.
func (m *Manager) transformTransaction(txHash string, timestamp time.Time, logs []common.DecodedLog) ([]common.DomainEvent, []common.ProcessingError) {
	byContract := map[string][]common.DecodedLog{}
	contractOrder := []string{}
	for _, l := range logs {
		if _, ok := byContract[l.Contract]; !ok {
			contractOrder = append(contractOrder, l.Contract)
		}
		byContract[l.Contract] = append(byContract[l.Contract], l)
	}

	events := []common.DomainEvent{}
	procErrors := []common.ProcessingError{}
	for _, contract := range contractOrder {
		strategy, ok := m.transformers.StrategyForContract(contract)
		if !ok {
			continue
		}
		contractEvents, contractErrors := strategy.Transform(txHash, timestamp, byContract[contract])
		events = append(events, contractEvents...)
		procErrors = append(procErrors, contractErrors...)
	}
	return events, procErrors
}

// txOrderFromRawLogs keeps first-seen transaction order from the raw
// stream, restricted to transactions that decoded to something.
func txOrderFromRawLogs(rawLogs []common.RawLog, decoded map[string][]common.DecodedLog) []string {
	seen := map[string]struct{}{}
	order := []string{}
	for _, l := range rawLogs {
		if _, ok := decoded[l.TransactionHash]; !ok {
			continue
		}
		if _, ok := seen[l.TransactionHash]; ok {
			continue
		}
		seen[l.TransactionHash] = struct{}{}
		order = append(order, l.TransactionHash)
	}
	return order
}
