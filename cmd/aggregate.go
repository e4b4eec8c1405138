package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sells-group/rai-disparity/internal/results"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Summarize ATEs over a parameter sweep",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Data.OutDir
		}
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = filepath.Join(dir, "results_ate.csv")
		}
		keep, _ := cmd.Flags().GetBool("keep-constant")

		_, err := results.Write(dir, out, cfg.Schema().Scores, keep)
		return err
	},
}

func init() {
	aggregateCmd.Flags().String("dir", "", "directory searched for experiment sidecars (default data.out_dir)")
	aggregateCmd.Flags().String("out", "", "summary CSV (default <dir>/results_ate.csv)")
	aggregateCmd.Flags().Bool("keep-constant", false, "also group by parameters shared by every experiment")
	rootCmd.AddCommand(aggregateCmd)
}
