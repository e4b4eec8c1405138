package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/rai-disparity/internal/tableio"
)

var raisCmd = &cobra.Command{
	Use:   "rais",
	Short: "Score criminal histories with every risk instrument",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyYearFlags(cmd)
		if err := cfg.Validate("rais"); err != nil {
			return err
		}

		r := newRunner()
		scores, err := r.Scores(cmd.Context(), cfg.Synth.StartYear, cfg.Synth.EndYear)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			logWrote(r.ScoresPath(cfg.Synth.StartYear, cfg.Synth.EndYear), len(scores))
			return nil
		}
		if err := tableio.WriteCSV(out, scores); err != nil {
			return err
		}
		logWrote(out, len(scores))
		return nil
	},
}

func init() {
	addYearFlags(raisCmd)
	raisCmd.Flags().String("out", "", "also write scores to this CSV (always cached as <scratch_dir>/rais_<start>-<end>.csv)")
	rootCmd.AddCommand(raisCmd)
}
