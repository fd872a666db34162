package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "indexer",
		Short: "Liquidity-book event indexer",
		Long:  "Ingests raw block data and turns it into normalized domain events (positions, swaps, transfers), processing each block exactly once to completion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args)
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yml)")

	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(transactionCmd)
}
