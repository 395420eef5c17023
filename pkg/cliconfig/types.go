// Package cliconfig provides configuration types and loading for the rbind CLI.
package cliconfig

import "time"

// Config represents the complete configuration for the rbind CLI.
// Configuration values can come from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Local config file (.rbindrc.yaml in current directory)
// 4. Global config file ($XDG_CONFIG_HOME/rbind/config.yaml)
// 5. Default values (lowest priority)
type Config struct {
	// Server settings
	URL      string        `yaml:"url" json:"url"`
	Token    string        `yaml:"token,omitempty" json:"-"`
	Username string        `yaml:"username,omitempty" json:"username,omitempty"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	// Logging settings
	LogLevel  string `yaml:"logLevel" json:"logLevel"`
	LogFormat string `yaml:"logFormat" json:"logFormat"`

	// Output settings
	JSON bool `yaml:"json" json:"json"`

	// Sources tracks where each value came from (for debugging)
	Sources map[string]string `yaml:"-" json:"-"`

	// SetFields records the keys explicitly present in the source, so that
	// an explicit false can be told apart from an absent boolean.
	SetFields map[string]bool `yaml:"-" json:"-"`
}

// ConfigSource identifies where a config value originated.
const (
	SourceDefault = "default"
	SourceEnv     = "env"
	SourceGlobal  = "global"
	SourceLocal   = "local"
	SourceFlag    = "flag"
)
