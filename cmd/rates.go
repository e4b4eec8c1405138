package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/rai-disparity/internal/model"
)

var ratesCmd = &cobra.Command{
	Use:       "rates <ncvs|nsduh>",
	Short:     "Estimate smoothed per-cell arrest rates from a survey",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{model.SourceNCVS, model.SourceNSDUH},
	RunE: func(cmd *cobra.Command, args []string) error {
		override(cmd, "smoothing", &cfg.Survey.Smoothing, cmd.Flags().GetString)
		override(cmd, "encoding", &cfg.Survey.Encoding, cmd.Flags().GetString)
		override(cmd, "years", &cfg.Survey.NSDUHYears, cmd.Flags().GetIntSlice)
		override(cmd, "out", &cfg.Data.RatesDir, cmd.Flags().GetString)
		if err := cfg.Validate("rates"); err != nil {
			return err
		}

		r := newRunner()
		rates, err := r.Rates(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		logWrote(r.RatesPath(args[0]), len(rates))
		return nil
	},
}

func init() {
	ratesCmd.Flags().String("smoothing", "", "regression or average")
	ratesCmd.Flags().String("encoding", "", "character set of the survey extracts")
	ratesCmd.Flags().IntSlice("years", nil, "NSDUH years to load (default: every extract found)")
	ratesCmd.Flags().String("out", "", "directory for <source>_<smoothing>.csv (default data.rates_dir)")
	rootCmd.AddCommand(ratesCmd)
}
