package cmd

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	customlog "github.com/dexlens/indexer/internal/log"
	"github.com/dexlens/indexer/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the continuous block processing pipeline",
	Long:  "Starts the runner (ingests and processes new blocks) and the retryer (reprocesses failed and missing blocks) until interrupted.",
	RunE:  runPipeline,
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info().Msg("starting pipeline")

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if a.cfg.Runner.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.runner.Start(ctx); err != nil {
				errCh <- err
				stop()
			}
		}()
	}

	if a.cfg.Retryer.Enabled {
		retryer := pipeline.NewRetryer(a.runner, a.registry, a.cfg.Retryer,
			customlog.NewLogger("retryer", a.cfg.Log))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := retryer.Start(ctx); err != nil {
				errCh <- err
				stop()
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		a.logger.Error().Err(err).Msg("pipeline stopped with error")
		return err
	default:
		a.logger.Info().Msg("pipeline stopped")
		return nil
	}
}
