package cliconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// GlobalConfigDir is the directory for global config
	GlobalConfigDir = "rbind"
)

// LocalConfigFileNames are the names to search for local config (in order).
var LocalConfigFileNames = []string{".rbindrc.yaml", ".rbindrc.yml"}

// GlobalConfigFileNames are the names to search for global config (in order).
var GlobalConfigFileNames = []string{"config.yaml", "config.yml"}

// FindLocalConfig searches dir (the current directory when empty) for
// .rbindrc.yaml or .rbindrc.yml. Returns empty string if not found.
func FindLocalConfig(dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = cwd
	}
	return findFirst(dir, LocalConfigFileNames), nil
}

// GlobalConfigPath returns the global config directory:
// $XDG_CONFIG_HOME/rbind, or the platform user config directory.
func GlobalConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, GlobalConfigDir), nil
}

// FindGlobalConfig searches dir (GlobalConfigPath when empty) for the
// global config file. Returns empty string if not found.
func FindGlobalConfig(dir string) (string, error) {
	if dir == "" {
		d, err := GlobalConfigPath()
		if err != nil {
			//nolint:nilerr // no config dir means no global config
			return "", nil
		}
		dir = d
	}
	return findFirst(dir, GlobalConfigFileNames), nil
}

func findFirst(dir string, names []string) string {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadConfigFile loads a Config from a YAML file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, newConfigError(path, err)
	}
	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, newConfigError(path, err)
	}

	cfg.Sources = make(map[string]string)
	cfg.SetFields = make(map[string]bool, len(keys))
	for k := range keys {
		cfg.SetFields[k] = true
	}
	return &cfg, nil
}

// ConfigError represents a configuration error with location info.
type ConfigError struct {
	Path    string
	Line    int
	Message string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return e.Path + " (line " + strconv.Itoa(e.Line) + "): " + e.Message
	}
	return e.Path + ": " + e.Message
}

var yamlLine = regexp.MustCompile(`line (\d+): (.*)`)

func newConfigError(path string, err error) *ConfigError {
	ce := &ConfigError{Path: path, Message: err.Error()}
	var te *yaml.TypeError
	msg := err.Error()
	if errors.As(err, &te) && len(te.Errors) > 0 {
		msg = te.Errors[0]
	}
	if m := yamlLine.FindStringSubmatch(msg); m != nil {
		ce.Line, _ = strconv.Atoi(m[1])
		ce.Message = m[2]
	}
	return ce
}

// LoadOptions overrides where Load looks for configuration.
type LoadOptions struct {
	// LocalDir is searched for the local config. Defaults to the working directory.
	LocalDir string
	// GlobalDir is searched for the global config. Defaults to GlobalConfigPath.
	GlobalDir string
	// Getenv reads environment variables. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load loads configuration from all sources and merges them.
// Precedence: env > local config > global config > defaults. Flags are
// merged on top by the caller with SourceFlag.
func Load(opts LoadOptions) (*Config, error) {
	cfg := NewDefault()

	globalPath, err := FindGlobalConfig(opts.GlobalDir)
	if err != nil {
		return nil, err
	}
	if err := mergeFile(cfg, globalPath, SourceGlobal); err != nil {
		return nil, err
	}

	localPath, err := FindLocalConfig(opts.LocalDir)
	if err != nil {
		return nil, err
	}
	if err := mergeFile(cfg, localPath, SourceLocal); err != nil {
		return nil, err
	}

	if err := LoadEnvConfig(cfg, opts.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAll loads configuration from the default locations.
func LoadAll() (*Config, error) {
	return Load(LoadOptions{})
}

func mergeFile(cfg *Config, path, source string) error {
	if path == "" {
		return nil
	}
	fileCfg, err := LoadConfigFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s config: %w", source, err)
	}
	MergeConfig(cfg, fileCfg, source)
	return nil
}
