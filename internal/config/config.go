// Package config holds the launch parameters the device-control host hands
// to the plugin process. The host invokes the binary with single-dash long
// options (-port, -pluginUUID, -registerEvent, -info); everything else is
// taken from the environment with sensible defaults.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

const (
	appNameVar  = "FORMDECK_APP_NAME"
	logLevelVar = "FORMDECK_LOG_LEVEL"
)

// Config carries the registration handshake parameters plus ambient
// environment settings.
type Config struct {
	Port          string
	PluginUUID    string
	RegisterEvent string
	Info          json.RawMessage
}

// Parse reads the host's argv contract. The info blob is kept verbatim; it is
// opaque to the bridge and only echoed into diagnostics.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("formdeck", flag.ContinueOnError)

	port := fs.String("port", "", "websocket port assigned by the host")
	pluginUUID := fs.String("pluginUUID", "", "plugin identity assigned by the host")
	registerEvent := fs.String("registerEvent", "", "registration event name")
	info := fs.String("info", "", "host info JSON blob")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("[config.Parse] %w", err)
	}

	c := &Config{
		Port:          *port,
		PluginUUID:    *pluginUUID,
		RegisterEvent: *registerEvent,
	}

	if *info != "" {
		if !json.Valid([]byte(*info)) {
			return nil, fmt.Errorf("[config.Parse] -info is not valid JSON")
		}
		c.Info = json.RawMessage(*info)
	}

	return c, nil
}

// Complete reports whether all three registration parameters were supplied.
// Without them the process has nothing to connect to.
func (c *Config) Complete() bool {
	return c.Port != "" && c.PluginUUID != "" && c.RegisterEvent != ""
}

func (c *Config) GetAppName() string {
	return GetEnv(appNameVar, "FormDeck")
}

func (c *Config) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
