package publisher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
	"github.com/dexlens/indexer/internal/metrics"
)

// Publisher ships domain events to Kafka after they are persisted. It is
// wired in as a post-persist hook, so publish failures are best-effort by
// construction and never affect block outcomes.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger zerolog.Logger
}

type eventMessage struct {
	ContentID   string             `json:"content_id"`
	EventType   string             `json:"event_type"`
	TxHash      string             `json:"transaction_hash"`
	BlockNumber uint64             `json:"block_number"`
	Payload     common.DomainEvent `json:"payload"`
}

func New(cfg config.PublisherConfig, logger zerolog.Logger) (*Publisher, error) {
	if !cfg.Enabled || cfg.Brokers == "" {
		return nil, nil
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ClientID("dexlens-indexer"),
		kgo.MetadataMaxAge(60 * time.Second),
		kgo.DialTimeout(10 * time.Second),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, kgo.SASL(plain.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsMechanism()))
		tlsDialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 10 * time.Second}}
		opts = append(opts, kgo.Dialer(tlsDialer.DialContext))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "domain-events"
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// PublishBlockEvents emits one record per domain event, keyed by content id
// so downstream compaction collapses replays.
func (p *Publisher) PublishBlockEvents(ctx context.Context, data *common.BlockData) error {
	if p == nil || p.client == nil {
		return nil
	}

	records := make([]*kgo.Record, 0, data.EventCount())
	for txHash, events := range data.DomainByTx {
		for _, event := range events {
			message, err := json.Marshal(eventMessage{
				ContentID:   event.ContentID(),
				EventType:   event.EventType(),
				TxHash:      txHash,
				BlockNumber: data.BlockNumber,
				Payload:     event,
			})
			if err != nil {
				return fmt.Errorf("failed to serialize %s event: %w", event.EventType(), err)
			}
			records = append(records, &kgo.Record{
				Topic: p.topic,
				Key:   []byte(event.ContentID()),
				Value: message,
			})
		}
	}
	if len(records) == 0 {
		return nil
	}

	results := p.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("failed to publish %d events: %w", len(records), err)
	}
	metrics.PublishedEvents.Add(float64(len(records)))
	return nil
}

func (p *Publisher) Close() {
	if p != nil && p.client != nil {
		p.client.Close()
	}
}
