package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
	"github.com/dexlens/indexer/internal/decoder"
	customlog "github.com/dexlens/indexer/internal/log"
	"github.com/dexlens/indexer/internal/pipeline"
	"github.com/dexlens/indexer/internal/publisher"
	"github.com/dexlens/indexer/internal/registry"
	"github.com/dexlens/indexer/internal/source"
	"github.com/dexlens/indexer/internal/storage"
	"github.com/dexlens/indexer/internal/transform"
)

// app is the dependency-injection context built once at startup and passed
// by reference; there is no global registry of components.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	storage   storage.IStorage
	registry  *registry.BlockRegistry
	manager   *pipeline.Manager
	runner    *pipeline.Runner
	source    *source.StorageSource
	publisher *publisher.Publisher
}

func newApp(cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger := customlog.NewLogger("indexer", cfg.Log)

	store, err := storage.NewStorageConnector(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	blockRegistry := registry.NewBlockRegistry(store.RegistryStorage, store.RawStorage,
		customlog.NewLogger("registry", cfg.Log))

	transformers, err := transform.NewRegistry(cfg, customlog.NewLogger("transform", cfg.Log))
	if err != nil {
		return nil, err
	}

	eventDecoder, err := decoder.NewEventDecoder(transformers, customlog.NewLogger("decoder", cfg.Log))
	if err != nil {
		return nil, err
	}

	persistor := storage.NewPersistor(store.MainStorage, store.RawStorage)
	hooks := pipeline.NewHooks(customlog.NewLogger("hooks", cfg.Log))

	manager := pipeline.NewManager(eventDecoder, persistor, transformers, hooks,
		cfg.Pipeline.FailOnValidationError, customlog.NewLogger("pipeline", cfg.Log))

	pub, err := publisher.New(cfg.Publisher, customlog.NewLogger("publisher", cfg.Log))
	if err != nil {
		return nil, err
	}
	if pub != nil {
		hooks.Register(pipeline.PostPersist, "kafka-publisher",
			func(ctx context.Context, data *common.BlockData) error {
				return pub.PublishBlockEvents(ctx, data)
			})
	}

	src := source.NewStorageSource(store.RawStorage, customlog.NewLogger("source", cfg.Log))
	runner := pipeline.NewRunner(src, manager, blockRegistry, cfg.Runner,
		customlog.NewLogger("runner", cfg.Log))

	return &app{
		cfg:       cfg,
		logger:    logger,
		storage:   store,
		registry:  blockRegistry,
		manager:   manager,
		runner:    runner,
		source:    src,
		publisher: pub,
	}, nil
}

func (a *app) close() {
	a.publisher.Close()
}
