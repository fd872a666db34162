package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var transactionCmd = &cobra.Command{
	Use:   "transaction <blockNumber> <txHash>",
	Short: "Reprocess a single transaction",
	Long:  "Re-runs decode and transform for one transaction of an archived block and upserts its events, without touching the block's registry record.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		blockNumber, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid block number %q: %w", args[0], err)
		}
		txHash := args[1]

		a, err := newApp(cfgFile)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		block, err := a.storage.RawStorage.LoadRawBlock(ctx, blockNumber)
		if err != nil {
			return fmt.Errorf("failed to load raw block %d: %w", blockNumber, err)
		}

		events, err := a.manager.ProcessTransaction(ctx, txHash, blockNumber, block.Logs, block.Timestamp)
		if err != nil {
			return err
		}
		a.logger.Info().
			Str("txHash", txHash).
			Uint64("block", blockNumber).
			Int("events", len(events)).
			Msg("transaction reprocessed")
		return nil
	},
}
