package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"history", "rais", "rates", "synth", "ate", "aggregate", "runs"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "rai-disparity", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAteCommand_Flags(t *testing.T) {
	for _, name := range []string{"start", "end", "window", "synth", "baseline", "treatment",
		"matching", "repeat-match", "bins", "subsample", "lam", "omega", "seed"} {
		require.NotNil(t, ateCmd.Flags().Lookup(name), "ate command should have --%s flag", name)
	}
}

func TestRatesCommand_Args(t *testing.T) {
	assert.NoError(t, ratesCmd.Args(ratesCmd, []string{"ncvs"}))
	assert.NoError(t, ratesCmd.Args(ratesCmd, []string{"nsduh"}))
	assert.Error(t, ratesCmd.Args(ratesCmd, []string{"ucr"}))
	assert.Error(t, ratesCmd.Args(ratesCmd, nil))
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}

func TestAggregateCommand_Flags(t *testing.T) {
	flag := aggregateCmd.Flags().Lookup("keep-constant")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
