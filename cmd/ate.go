package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/rai-disparity/internal/experiment"
	"github.com/sells-group/rai-disparity/internal/model"
)

var ateCmd = &cobra.Command{
	Use:   "ate",
	Short: "Estimate the effect of race on every risk score",
	Long: "Joins risk scores with observed or synthesized offense counts, matches defendants " +
		"of the baseline and treatment groups on binned offense counts and demographics, and " +
		"writes ATE, CATE and sidecar files under <out_dir>/<start>-<end>_<window>/.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		applyYearFlags(cmd)
		applySynthFlags(cmd)
		applyMatchingFlags(cmd)
		if err := cfg.Validate("ate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out, err := experiment.NewRunner(cfg, st).Run(ctx, experiment.ParamsFromConfig(cfg))
		if err != nil {
			return err
		}
		formatEffects(os.Stdout, out.Result.Summaries)
		fmt.Fprintf(os.Stderr, "run %s: %s\n", out.RunID, out.ATEPath)
		return nil
	},
}

func applyMatchingFlags(cmd *cobra.Command) {
	override(cmd, "synth", &cfg.Matching.Synthetic, cmd.Flags().GetBool)
	override(cmd, "baseline", &cfg.Matching.Baseline, cmd.Flags().GetString)
	override(cmd, "treatment", &cfg.Matching.Treatment, cmd.Flags().GetString)
	override(cmd, "matching", &cfg.Matching.Algorithm, cmd.Flags().GetString)
	override(cmd, "repeat-match", &cfg.Matching.Repeats, cmd.Flags().GetBool)
	override(cmd, "bins", &cfg.Matching.Bins, cmd.Flags().GetIntSlice)
	override(cmd, "subsample", &cfg.Matching.Subsample, cmd.Flags().GetInt)
}

// formatEffects writes one line per score to w.
func formatEffects(out io.Writer, effects []model.EffectSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tATE\tATT\tUNITS\tMATCHED\tGROUPS\tDROPPED")
	for _, e := range effects {
		_, _ = fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%d\t%d\t%d\t%d\n",
			e.Score, e.ATE, e.ATT, e.Units, e.Matched, e.Groups, e.Dropped)
	}
	_ = w.Flush()
}

func init() {
	addYearFlags(ateCmd)
	addSynthFlags(ateCmd)
	ateCmd.Flags().Bool("synth", false, "match on synthesized instead of observed offense counts")
	ateCmd.Flags().String("baseline", "", "control value of calc.race")
	ateCmd.Flags().String("treatment", "", "treated value of calc.race")
	ateCmd.Flags().String("matching", "", "flame, dame or hybrid")
	ateCmd.Flags().Bool("repeat-match", false, "keep matched units available to later levels")
	ateCmd.Flags().IntSlice("bins", nil, "right ends of the offense count bins, inclusive")
	ateCmd.Flags().Int("subsample", 0, "match at most this many defendants per score")
	rootCmd.AddCommand(ateCmd)
}
