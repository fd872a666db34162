package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
)

// MemoryConnector implements every storage interface in memory. Used for
// tests and local development.
type MemoryConnector struct {
	cache *lru.Cache[string, string]
	mu    sync.Mutex
}

func NewMemoryConnector(cfg *config.MemoryConfig) (*MemoryConnector, error) {
	maxItems := 10000
	if cfg != nil && cfg.MaxItems > 0 {
		maxItems = cfg.MaxItems
	}

	cache, err := lru.New[string, string](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &MemoryConnector{cache: cache}, nil
}

func blockRecordKey(blockNumber uint64) string {
	return fmt.Sprintf("block_record:%020d", blockNumber)
}

func rawBlockKey(blockNumber uint64) string {
	return fmt.Sprintf("raw_block:%020d", blockNumber)
}

func (m *MemoryConnector) GetBlockRecord(blockNumber uint64) (*common.BlockRecord, error) {
	value, ok := m.cache.Get(blockRecordKey(blockNumber))
	if !ok {
		return nil, nil
	}
	record := common.BlockRecord{}
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (m *MemoryConnector) InsertBlockRecord(record *common.BlockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recordJson, err := json.Marshal(record)
	if err != nil {
		return err
	}
	m.cache.Add(blockRecordKey(record.BlockNumber), string(recordJson))
	return nil
}

func (m *MemoryConnector) UpdateBlockRecord(blockNumber uint64, allowedFrom []common.ProcessingStatus, update BlockStatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.cache.Get(blockRecordKey(blockNumber))
	if !ok {
		return false, nil
	}
	record := common.BlockRecord{}
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return false, err
	}

	allowed := false
	for _, from := range allowedFrom {
		if record.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	record.Status = update.Status
	if update.StorageType != "" {
		record.StorageType = update.StorageType
	}
	if update.Path != "" {
		record.Path = update.Path
	}
	record.Error = update.Error
	if update.EventCount != nil {
		record.EventCount = *update.EventCount
	}

	recordJson, err := json.Marshal(&record)
	if err != nil {
		return false, err
	}
	m.cache.Add(blockRecordKey(blockNumber), string(recordJson))
	return true, nil
}

func (m *MemoryConnector) GetBlockNumbersInRange(start, end uint64) ([]uint64, error) {
	numbers := []uint64{}
	for _, key := range m.cache.Keys() {
		if !strings.HasPrefix(key, "block_record:") {
			continue
		}
		var n uint64
		if _, err := fmt.Sscanf(key, "block_record:%d", &n); err != nil {
			continue
		}
		if n >= start && n <= end {
			numbers = append(numbers, n)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers, nil
}

func (m *MemoryConnector) GetBlockRecordsByStatus(status common.ProcessingStatus, limit int) ([]common.BlockRecord, error) {
	records := []common.BlockRecord{}
	keys := m.cache.Keys()
	sort.Strings(keys)
	for _, key := range keys {
		if limit > 0 && len(records) >= limit {
			break
		}
		if !strings.HasPrefix(key, "block_record:") {
			continue
		}
		value, ok := m.cache.Get(key)
		if !ok {
			continue
		}
		record := common.BlockRecord{}
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return nil, err
		}
		if record.Status == status {
			records = append(records, record)
		}
	}
	return records, nil
}

// eventEnvelope is the stored row shape for domain events; ContentID is the
// upsert key.
type eventEnvelope struct {
	ContentID   string      `json:"content_id"`
	EventType   string      `json:"event_type"`
	TxHash      string      `json:"transaction_hash"`
	BlockNumber uint64      `json:"block_number"`
	Payload     interface{} `json:"payload"`
}

func (m *MemoryConnector) InsertDomainEvents(_ context.Context, blockNumber uint64, eventsByTx map[string][]common.DomainEvent) error {
	for txHash, events := range eventsByTx {
		for _, event := range events {
			if err := m.upsertEvent(blockNumber, txHash, event); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MemoryConnector) InsertTransactionEvents(_ context.Context, txHash string, events []common.DomainEvent) error {
	for _, event := range events {
		if err := m.upsertEvent(0, txHash, event); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryConnector) upsertEvent(blockNumber uint64, txHash string, event common.DomainEvent) error {
	envelope := eventEnvelope{
		ContentID:   event.ContentID(),
		EventType:   event.EventType(),
		TxHash:      txHash,
		BlockNumber: blockNumber,
		Payload:     event,
	}
	envelopeJson, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	m.cache.Add(fmt.Sprintf("domain_event:%s", event.ContentID()), string(envelopeJson))
	return nil
}

// DomainEventCount reports distinct stored events; handy in tests asserting
// upsert semantics.
func (m *MemoryConnector) DomainEventCount() int {
	count := 0
	for _, key := range m.cache.Keys() {
		if strings.HasPrefix(key, "domain_event:") {
			count++
		}
	}
	return count
}

func (m *MemoryConnector) SaveRawBlock(_ context.Context, block *common.RawBlock) (string, error) {
	blockJson, err := json.Marshal(block)
	if err != nil {
		return "", err
	}
	key := rawBlockKey(block.Number)
	m.cache.Add(key, string(blockJson))
	return key, nil
}

func (m *MemoryConnector) LoadRawBlock(_ context.Context, blockNumber uint64) (*common.RawBlock, error) {
	value, ok := m.cache.Get(rawBlockKey(blockNumber))
	if !ok {
		return nil, common.ErrBlockNotFound
	}
	block := common.RawBlock{}
	if err := json.Unmarshal([]byte(value), &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (m *MemoryConnector) RawBlockExists(_ context.Context, blockNumber uint64) (bool, error) {
	return m.cache.Contains(rawBlockKey(blockNumber)), nil
}

func (m *MemoryConnector) GetAvailableBlocks(_ context.Context, start, end uint64) ([]uint64, error) {
	numbers := []uint64{}
	for _, key := range m.cache.Keys() {
		if !strings.HasPrefix(key, "raw_block:") {
			continue
		}
		var n uint64
		if _, err := fmt.Sscanf(key, "raw_block:%d", &n); err != nil {
			continue
		}
		if n >= start && n <= end {
			numbers = append(numbers, n)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers, nil
}

func (m *MemoryConnector) MaxAvailableBlock(ctx context.Context) (uint64, error) {
	numbers, err := m.GetAvailableBlocks(ctx, 0, ^uint64(0))
	if err != nil || len(numbers) == 0 {
		return 0, err
	}
	return numbers[len(numbers)-1], nil
}
