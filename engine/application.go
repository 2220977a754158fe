package engine

import (
	"github.com/spaghettifunk/forwardplus/engine/core"
)

type ApplicationConfig struct {
	// The application name used in windowing, if applicable. Overrides the
	// config file when set.
	Name string
	// TOML or YAML config file. Empty uses the defaults.
	ConfigPath string
	// Overrides the config file log level when set.
	LogLevel string
}

// load reads the config file and applies the application overrides.
func (a *ApplicationConfig) load() (*core.Config, error) {
	cfg, err := core.LoadConfig(a.ConfigPath)
	if err != nil {
		return nil, err
	}
	if a.Name != "" {
		cfg.ApplicationName = a.Name
	}
	if a.LogLevel != "" {
		cfg.LogLevel = a.LogLevel
	}
	return cfg, nil
}
