package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rai-disparity/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rai-disparity",
	Short: "Racial disparity analysis for pretrial risk assessment instruments",
	Long: "Builds criminal-history summaries, scores them with pretrial risk instruments, " +
		"synthesizes undetected offenses from victimization and drug-use surveys, and estimates " +
		"treatment effects of race on each score by exact matching.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
