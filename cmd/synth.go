package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/rai-disparity/internal/experiment"
	"github.com/sells-group/rai-disparity/internal/tableio"
)

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Synthesize unobserved offenses and assign them to defendants",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyYearFlags(cmd)
		applySynthFlags(cmd)
		if err := cfg.Validate("synth"); err != nil {
			return err
		}

		p := experiment.ParamsFromConfig(cfg)
		res, err := newRunner().Synthesize(cmd.Context(), p)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = filepath.Join(cfg.Data.OutDir, filepath.Base(p.Synth().CachePath("")))
		}
		if err := tableio.WriteCSV(out, res.Counts); err != nil {
			return err
		}
		logWrote(out, len(res.Counts))

		if len(res.Cells) > 0 {
			cellsPath := strings.TrimSuffix(out, filepath.Ext(out)) + "-cells.csv"
			if err := tableio.WriteCSV(cellsPath, res.Cells); err != nil {
				return err
			}
			logWrote(cellsPath, len(res.Cells))
		}
		return nil
	},
}

func init() {
	addYearFlags(synthCmd)
	addSynthFlags(synthCmd)
	synthCmd.Flags().String("out", "", "output CSV of synthesized counts (default under data.out_dir)")
	rootCmd.AddCommand(synthCmd)
}
