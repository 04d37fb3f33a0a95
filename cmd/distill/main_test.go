package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/distill/config"
)

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Setenv("DISTILL_RETRIES", "4")

	root := newRootCmd()
	var got *config.Config
	root.RunE = func(*cobra.Command, []string) error { return nil }
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		opts := &options{}
		opts.fields, _ = cmd.Flags().GetStringSlice("fields")
		opts.delay, _ = cmd.Flags().GetDuration("delay")
		opts.outputDir, _ = cmd.Flags().GetString("output")
		var err error
		got, err = loadConfig(cmd, opts)
		return err
	}
	root.SetArgs([]string{"--fields", "title,genre", "--delay", "1s", "--output", t.TempDir()})

	require.NoError(t, root.Execute())
	require.NotNil(t, got)
	assert.Equal(t, []string{"title", "genre"}, got.Pipeline.Fields)
	assert.Equal(t, time.Second, got.Pipeline.RetryDelay)
	assert.Equal(t, 4, got.Pipeline.Retries, "unset flags keep the environment value")
}

func TestLoadConfig_Invalid(t *testing.T) {
	root := newRootCmd()
	root.RunE = func(*cobra.Command, []string) error { return nil }
	root.SetArgs([]string{"--retries", "0"})

	err := root.Execute()
	assert.ErrorIs(t, err, config.ErrInvalidRetries)
}
