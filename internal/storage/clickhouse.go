package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
)

// ClickHouseConnector is the analytics (main) storage. Domain events land in
// a ReplacingMergeTree keyed by content_id, so re-inserting the same event
// collapses to one row and replays stay idempotent.
type ClickHouseConnector struct {
	conn clickhouse.Conn
	cfg  *config.ClickhouseConfig
}

func NewClickHouseConnector(cfg *config.ClickhouseConfig) (*ClickHouseConnector, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return &ClickHouseConnector{conn: conn, cfg: cfg}, nil
}

func (c *ClickHouseConnector) InsertDomainEvents(ctx context.Context, blockNumber uint64, eventsByTx map[string][]common.DomainEvent) error {
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.domain_events (content_id, event_type, transaction_hash, block_number, block_timestamp, payload, insert_timestamp)",
		c.cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to prepare domain events batch: %w", err)
	}

	for txHash, events := range eventsByTx {
		for _, event := range events {
			if err := c.appendEvent(batch, blockNumber, txHash, event); err != nil {
				return err
			}
		}
	}
	return batch.Send()
}

func (c *ClickHouseConnector) InsertTransactionEvents(ctx context.Context, txHash string, events []common.DomainEvent) error {
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.domain_events (content_id, event_type, transaction_hash, block_number, block_timestamp, payload, insert_timestamp)",
		c.cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to prepare transaction events batch: %w", err)
	}
	for _, event := range events {
		if err := c.appendEvent(batch, 0, txHash, event); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (c *ClickHouseConnector) appendEvent(batch interface {
	Append(...interface{}) error
}, blockNumber uint64, txHash string, event common.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize %s event: %w", event.EventType(), err)
	}
	return batch.Append(
		event.ContentID(),
		event.EventType(),
		txHash,
		blockNumber,
		event.EventTimestamp(),
		string(payload),
		time.Now(),
	)
}

func (c *ClickHouseConnector) Close() error {
	return c.conn.Close()
}
