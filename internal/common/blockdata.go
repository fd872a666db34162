package common

import (
	"time"
)

// BlockData is the per-invocation container carried through the pipeline
// stages. It is owned by exactly one invocation and discarded after
// persistence or on failure.
type BlockData struct {
	BlockNumber    uint64
	BlockTimestamp time.Time

	RawLogs []RawLog

	// TxOrder preserves first-seen transaction order from the raw log
	// stream; the maps below are keyed by transaction hash.
	TxOrder     []string
	DecodedByTx map[string][]DecodedLog
	DomainByTx  map[string][]DomainEvent

	// Errors collects recoverable validation errors keyed by error id.
	Errors map[string]ProcessingError
}

func NewBlockData(blockNumber uint64, timestamp time.Time, rawLogs []RawLog) *BlockData {
	return &BlockData{
		BlockNumber:    blockNumber,
		BlockTimestamp: timestamp,
		RawLogs:        rawLogs,
		DecodedByTx:    make(map[string][]DecodedLog),
		DomainByTx:     make(map[string][]DomainEvent),
		Errors:         make(map[string]ProcessingError),
	}
}

// EventCount is the total number of domain events across all transactions.
func (b *BlockData) EventCount() uint64 {
	var count uint64
	for _, events := range b.DomainByTx {
		count += uint64(len(events))
	}
	return count
}
