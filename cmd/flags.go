package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rai-disparity/internal/experiment"
	"github.com/sells-group/rai-disparity/internal/store"
)

// override copies a flag into dst when the user set it.
func override[T any](cmd *cobra.Command, name string, dst *T, get func(string) (T, error)) {
	if !cmd.Flags().Changed(name) {
		return
	}
	if v, err := get(name); err == nil {
		*dst = v
	}
}

func addYearFlags(cmd *cobra.Command) {
	cmd.Flags().Int("start", 0, "first year of records (default from config)")
	cmd.Flags().Int("end", 0, "last year of records (default from config)")
}

func applyYearFlags(cmd *cobra.Command) {
	override(cmd, "start", &cfg.Synth.StartYear, cmd.Flags().GetInt)
	override(cmd, "end", &cfg.Synth.EndYear, cmd.Flags().GetInt)
}

func addSynthFlags(cmd *cobra.Command) {
	cmd.Flags().Int("window", 0, "years per offense window beyond the first")
	cmd.Flags().Float64("lam", 0, "multiplier of total crimes")
	cmd.Flags().Float64("omega", 0, "weight of recorded crimes when assigning unobserved ones")
	cmd.Flags().Uint64("seed", 0, "random seed")
	cmd.Flags().String("smoothing", "", "rate table to read: regression or average")
	cmd.Flags().String("rate-column", "", "detection rate column: arrest_rate, arrest_rate_smooth or reporting_rate")
	cmd.Flags().Float64("rate-mult-ncvs", 0, "multiplier of NCVS detection rates")
	cmd.Flags().Float64("rate-mult-nsduh", 0, "multiplier of NSDUH detection rates")
	cmd.Flags().Bool("no-cache", false, "recompute instead of reading cached tables")
}

func applySynthFlags(cmd *cobra.Command) {
	override(cmd, "window", &cfg.Synth.Window, cmd.Flags().GetInt)
	override(cmd, "lam", &cfg.Synth.Lambda, cmd.Flags().GetFloat64)
	override(cmd, "omega", &cfg.Synth.Omega, cmd.Flags().GetFloat64)
	override(cmd, "seed", &cfg.Synth.Seed, cmd.Flags().GetUint64)
	override(cmd, "smoothing", &cfg.Survey.Smoothing, cmd.Flags().GetString)
	override(cmd, "rate-column", &cfg.Synth.RateColumn, cmd.Flags().GetString)
	override(cmd, "rate-mult-ncvs", &cfg.Synth.RateMultNCVS, cmd.Flags().GetFloat64)
	override(cmd, "rate-mult-nsduh", &cfg.Synth.RateMultNSDUH, cmd.Flags().GetFloat64)
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Synth.Cache = false
	}
}

// initStore opens and migrates the configured run registry.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// newRunner returns a runner that records nothing.
func newRunner() *experiment.Runner {
	return experiment.NewRunner(cfg, store.Nop{})
}

func logWrote(path string, rows int) {
	zap.L().Info("wrote table", zap.String("path", path), zap.Int("rows", rows))
}
