package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sells-group/rai-disparity/internal/tableio"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Build per-defendant criminal-history summaries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyYearFlags(cmd)
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		hs, stats, err := newRunner().Histories(cmd.Context(), cfg.Synth.StartYear, cfg.Synth.EndYear)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = filepath.Join(cfg.Data.ScratchDir,
				fmt.Sprintf("history_%d-%d.csv", cfg.Synth.StartYear, cfg.Synth.EndYear))
		}
		if err := tableio.WriteCSV(out, hs); err != nil {
			return err
		}
		logWrote(out, stats.Summaries)
		return nil
	},
}

func init() {
	addYearFlags(historyCmd)
	historyCmd.Flags().String("out", "", "output CSV (default <scratch_dir>/history_<start>-<end>.csv)")
	rootCmd.AddCommand(historyCmd)
}
