package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/formdeck/formdeck/internal/config"
)

func TestParse(t *testing.T) {
	t.Run("host argv contract", func(t *testing.T) {
		cfg, err := config.Parse([]string{
			"-port", "28196",
			"-pluginUUID", "ABCDEF0123456789",
			"-registerEvent", "registerPlugin",
			"-info", `{"application":{"version":"6.5"}}`,
		})
		require.NoError(t, err)
		require.Equal(t, "28196", cfg.Port)
		require.Equal(t, "ABCDEF0123456789", cfg.PluginUUID)
		require.Equal(t, "registerPlugin", cfg.RegisterEvent)
		require.JSONEq(t, `{"application":{"version":"6.5"}}`, string(cfg.Info))
		require.True(t, cfg.Complete())
	})

	t.Run("missing parameters leave config incomplete", func(t *testing.T) {
		cfg, err := config.Parse([]string{"-port", "28196"})
		require.NoError(t, err)
		require.False(t, cfg.Complete())
	})

	t.Run("invalid info JSON is rejected", func(t *testing.T) {
		_, err := config.Parse([]string{"-info", "{not json"})
		require.Error(t, err)
	})

	t.Run("unknown flags are an error", func(t *testing.T) {
		_, err := config.Parse([]string{"-bogus", "x"})
		require.Error(t, err)
	})
}

func TestEnvDefaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)

	require.Equal(t, "FormDeck", cfg.GetAppName())
	require.Equal(t, "info", cfg.GetLogLevel())

	t.Setenv("FORMDECK_LOG_LEVEL", "debug")
	require.Equal(t, "debug", cfg.GetLogLevel())
}
