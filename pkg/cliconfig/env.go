package cliconfig

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by LoadEnvConfig.
const (
	EnvURL       = "RBIND_URL"
	EnvToken     = "RBIND_TOKEN"
	EnvUsername  = "RBIND_USERNAME"
	EnvTimeout   = "RBIND_TIMEOUT"
	EnvLogLevel  = "RBIND_LOG_LEVEL"
	EnvLogFormat = "RBIND_LOG_FORMAT"
	EnvJSON      = "RBIND_JSON"
)

// LoadEnvConfig applies environment variables to cfg. getenv defaults to
// os.Getenv. RBIND_TIMEOUT accepts a Go duration ("10s") or whole seconds.
func LoadEnvConfig(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := &Config{SetFields: make(map[string]bool)}

	env.URL = strings.TrimSpace(getenv(EnvURL))
	env.Token = strings.TrimSpace(getenv(EnvToken))
	env.Username = strings.TrimSpace(getenv(EnvUsername))
	env.LogLevel = strings.TrimSpace(getenv(EnvLogLevel))
	env.LogFormat = strings.TrimSpace(getenv(EnvLogFormat))

	if v := strings.TrimSpace(getenv(EnvTimeout)); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return &ConfigError{Path: EnvTimeout, Message: err.Error()}
		}
		env.Timeout = d
	}
	if v := strings.TrimSpace(getenv(EnvJSON)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Path: EnvJSON, Message: "expected a boolean, got " + strconv.Quote(v)}
		}
		env.JSON = b
		env.SetFields["json"] = true
	}

	MergeConfig(cfg, env, SourceEnv)
	return nil
}

func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
