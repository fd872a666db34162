package storage

import (
	"context"
	"fmt"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
)

// BlockStatusUpdate carries the mutable metadata written together with a
// status transition. Nil/zero fields are left untouched by stores.
type BlockStatusUpdate struct {
	Status      common.ProcessingStatus
	StorageType common.StorageType
	Path        string
	Error       string
	EventCount  *uint64
}

// IRegistryStorage is the durable store behind the block registry. A missing
// record is (nil, nil); an error always means the store itself failed, so
// callers can tell "no data" from "store unreachable".
type IRegistryStorage interface {
	GetBlockRecord(blockNumber uint64) (*common.BlockRecord, error)
	InsertBlockRecord(record *common.BlockRecord) error
	// UpdateBlockRecord applies the update only when the current status is
	// one of allowedFrom, returning whether a row was changed. This is the
	// compare-and-set guard that keeps two invocations from double-writing
	// one block's terminal state.
	UpdateBlockRecord(blockNumber uint64, allowedFrom []common.ProcessingStatus, update BlockStatusUpdate) (bool, error)
	GetBlockNumbersInRange(start, end uint64) ([]uint64, error)
	GetBlockRecordsByStatus(status common.ProcessingStatus, limit int) ([]common.BlockRecord, error)
}

// IMainStorage persists domain events. Inserts are idempotent upserts keyed
// by each event's content identifier.
type IMainStorage interface {
	InsertDomainEvents(ctx context.Context, blockNumber uint64, eventsByTx map[string][]common.DomainEvent) error
	InsertTransactionEvents(ctx context.Context, txHash string, events []common.DomainEvent) error
}

// IRawStorage archives raw block data for replay and passive sources.
type IRawStorage interface {
	SaveRawBlock(ctx context.Context, block *common.RawBlock) (string, error)
	LoadRawBlock(ctx context.Context, blockNumber uint64) (*common.RawBlock, error)
	RawBlockExists(ctx context.Context, blockNumber uint64) (bool, error)
	GetAvailableBlocks(ctx context.Context, start, end uint64) ([]uint64, error)
	MaxAvailableBlock(ctx context.Context) (uint64, error)
}

type IStorage struct {
	RegistryStorage IRegistryStorage
	MainStorage     IMainStorage
	RawStorage      IRawStorage
}

func NewStorageConnector(cfg *config.StorageConfig) (IStorage, error) {
	var storage IStorage
	var err error

	storage.RegistryStorage, err = NewConnector[IRegistryStorage](&cfg.Registry)
	if err != nil {
		return IStorage{}, fmt.Errorf("failed to create registry storage: %w", err)
	}

	storage.MainStorage, err = NewConnector[IMainStorage](&cfg.Main)
	if err != nil {
		return IStorage{}, fmt.Errorf("failed to create main storage: %w", err)
	}

	storage.RawStorage, err = NewConnector[IRawStorage](&cfg.Raw)
	if err != nil {
		return IStorage{}, fmt.Errorf("failed to create raw storage: %w", err)
	}

	return storage, nil
}

func NewConnector[T any](cfg *config.StorageConnectionConfig) (T, error) {
	var conn interface{}
	var err error
	if cfg.Clickhouse != nil {
		conn, err = NewClickHouseConnector(cfg.Clickhouse)
	} else if cfg.Postgres != nil {
		conn, err = NewPostgresConnector(cfg.Postgres)
	} else if cfg.S3 != nil {
		conn, err = NewS3Connector(cfg.S3)
	} else if cfg.Memory != nil {
		conn, err = NewMemoryConnector(cfg.Memory)
	} else {
		return *new(T), fmt.Errorf("no storage driver configured")
	}

	if err != nil {
		return *new(T), err
	}

	typedConn, ok := conn.(T)
	if !ok {
		return *new(T), fmt.Errorf("connector does not implement the required interface")
	}

	return typedConn, nil
}
