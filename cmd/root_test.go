package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"evaluate", "agreement", "fixtures", "runs", "serve", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "receipt-eval", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestEvaluateCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"results", "truth", "metric", "format", "output", "schema", "rates", "workers", "tolerance", "full", "save", "label"} {
		flag := evaluateCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "evaluate should have --%s flag", flagName)
	}

	format := evaluateCmd.Flags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "table", format.DefValue)

	metric := evaluateCmd.Flags().Lookup("metric")
	require.NotNil(t, metric)
	assert.Equal(t, "mean_field_accuracy", metric.DefValue)
}

func TestAgreementCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"results", "baseline", "threshold", "format", "output"} {
		flag := agreementCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "agreement should have --%s flag", flagName)
	}
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	cmds := runsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"list", "show", "stats", "export"}
	for _, name := range expected {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestFixturesCommand_HasSubcommands(t *testing.T) {
	cmds := fixturesCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, name := range []string{"generate", "import-xlsx"} {
		assert.True(t, names[name], "fixtures should have subcommand %q", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	truth := serveCmd.Flags().Lookup("truth")
	require.NotNil(t, truth, "serve command should have --truth flag")
}

func TestRunsListCommand_Flags(t *testing.T) {
	limit := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit, "runs list should have --limit flag")
	assert.Equal(t, "50", limit.DefValue)

	for _, flagName := range []string{"status", "strategy", "since"} {
		flag := runsListCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "runs list should have --%s flag", flagName)
	}
}
