package common

import (
	"time"
)

// ProcessingStatus is the lifecycle state of a block in the registry.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusProcessed  ProcessingStatus = "PROCESSED"
	StatusFailed     ProcessingStatus = "FAILED"
	// StatusMissing is virtual: computed by range-scanning for numbers
	// absent from the registry, never stored.
	StatusMissing ProcessingStatus = "MISSING"
)

type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMemory StorageType = "memory"
)

// BlockRecord is the durable registry row for one block number. At most one
// record exists per block number; it is never deleted, only moved between
// statuses.
type BlockRecord struct {
	BlockNumber uint64           `json:"block_number"`
	BlockHash   string           `json:"block_hash"`
	ParentHash  string           `json:"parent_hash"`
	Timestamp   time.Time        `json:"timestamp"`
	Status      ProcessingStatus `json:"status"`
	StorageType StorageType      `json:"storage_type,omitempty"`
	Path        string           `json:"path,omitempty"`
	Error       string           `json:"error,omitempty"`
	EventCount  uint64           `json:"event_count"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// RawBlock is the stored raw form of one block: header fields plus the
// unparsed log stream, as saved by the raw source.
type RawBlock struct {
	Number     uint64    `json:"number"`
	Hash       string    `json:"hash"`
	ParentHash string    `json:"parent_hash"`
	Timestamp  time.Time `json:"timestamp"`
	Logs       []RawLog  `json:"logs"`
}
