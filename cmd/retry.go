package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry <blockNumber>...",
	Short: "Force reprocessing of specific blocks",
	Long:  "Reprocesses the given blocks regardless of their current status, including blocks already marked processed.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blockNumbers := make([]uint64, 0, len(args))
		for _, arg := range args {
			n, err := strconv.ParseUint(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid block number %q: %w", arg, err)
			}
			blockNumbers = append(blockNumbers, n)
		}

		a, err := newApp(cfgFile)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		for _, n := range blockNumbers {
			if err := a.runner.RetryBlock(ctx, n); err != nil {
				return fmt.Errorf("retry of block %d failed: %w", n, err)
			}
			a.logger.Info().Uint64("block", n).Msg("block retried")
		}
		return nil
	},
}
