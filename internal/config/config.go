// Package config resolves the static configuration the bridge server needs
// at startup: the coder adapter's hosted-model credentials, and file-logging
// knobs shared with internal/logger.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

const (
	// ConfigDirName is the directory under the user's home holding config.toml.
	ConfigDirName = ".ccg-mcp"
	// ConfigFileBase is the config file name, without extension.
	ConfigFileBase = "config"
	// ConfigFileType is the config file format.
	ConfigFileType = "toml"

	// DefaultCoderBaseURL is used when [coder].base_url is unset.
	DefaultCoderBaseURL = "https://open.bigmodel.cn/api/anthropic"
	// DefaultCoderModel is used when [coder].model is unset.
	DefaultCoderModel = "glm-4.7"
)

// CoderConfig holds the code-executor adapter's hosted-model credentials.
type CoderConfig struct {
	APIToken string            `mapstructure:"api_token"`
	BaseURL  string            `mapstructure:"base_url"`
	Model    string            `mapstructure:"model"`
	Env      map[string]string `mapstructure:"env"`
}

// ReviewerConfig holds optional defaults for the reviewer adapter. The
// reviewer CLI manages its own authentication; nothing here is required.
type ReviewerConfig struct {
	Profile string `mapstructure:"profile"`
	Model   string `mapstructure:"model"`
}

// GeneralistConfig holds optional defaults for the generalist adapter. Like
// ReviewerConfig, the generalist CLI manages its own authentication.
type GeneralistConfig struct {
	Model string `mapstructure:"model"`
}

// LoggingConfig mirrors internal/logger.LoggingConfig's shape so the same
// TOML [logging] section configures file rotation for the ambient logger
// without internal/config importing internal/logger (avoiding an import
// cycle, since internal/logger never needs to know about internal/config).
type LoggingConfig struct {
	FileEnabled *bool `mapstructure:"file_enabled"`
	MaxSizeMB   int   `mapstructure:"max_size_mb"`
	MaxAgeDays  int   `mapstructure:"max_age_days"`
	MaxBackups  int   `mapstructure:"max_backups"`
	Compress    *bool `mapstructure:"compress"`
}

// Config is the process-wide configuration snapshot, loaded once.
type Config struct {
	Coder      CoderConfig      `mapstructure:"coder"`
	Reviewer   ReviewerConfig   `mapstructure:"reviewer"`
	Generalist GeneralistConfig `mapstructure:"generalist"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ConfigError reports a configuration problem found by Load. ccg-mcp serve
// prints it and exits before serving any tool; it is not turned into a
// config_error tool result.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

var (
	once    sync.Once
	cached  *Config
	loadErr error
)

// Path returns the location of the config file, honoring $CCG_MCP_HOME as an
// override for the containing directory (primarily for tests).
func Path() (string, error) {
	if dir := os.Getenv("CCG_MCP_HOME"); dir != "" {
		return filepath.Join(dir, ConfigFileBase+"."+ConfigFileType), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDirName, ConfigFileBase+"."+ConfigFileType), nil
}

// Load resolves the configuration, preferring the TOML config file over
// environment variables, and caches the result for the lifetime of the
// process (sync.Once-guarded, per SPEC_FULL.md §9's "no hot-reload" note).
func Load() (*Config, error) {
	once.Do(func() {
		cached, loadErr = load()
	})
	return cached, loadErr
}

// Reset clears the cached configuration. Exists for tests only.
func Reset() {
	once = sync.Once{}
	cached = nil
	loadErr = nil
}

// load resolves the configuration with the config file taking precedence
// over the environment: env vars are only consulted as a fallback for
// whichever coder fields the file leaves unset (§6's "config file >
// environment variables").
func load() (*Config, error) {
	v := viper.New()
	v.SetConfigType(ConfigFileType)

	v.SetDefault("coder.base_url", DefaultCoderBaseURL)
	v.SetDefault("coder.model", DefaultCoderModel)

	path, err := Path()
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("resolving config path: %v", err)}
	}

	fileLoaded := fileExists(path)
	if fileLoaded {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Message: fmt.Sprintf("config file %s is malformed: %v", path, err)}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("parsing config file %s: %v", path, err)}
	}

	// Environment variables only fill in whatever the file left unset —
	// a present file value is never overridden, matching the file>env
	// precedence the original config loader enforces.
	if cfg.Coder.APIToken == "" {
		cfg.Coder.APIToken = os.Getenv("CODER_API_TOKEN")
	}
	if !v.InConfig("coder.base_url") {
		if env := os.Getenv("CODER_BASE_URL"); env != "" {
			cfg.Coder.BaseURL = env
		}
	}
	if !v.InConfig("coder.model") {
		if env := os.Getenv("CODER_MODEL"); env != "" {
			cfg.Coder.Model = env
		}
	}

	if cfg.Coder.APIToken == "" {
		return nil, &ConfigError{Message: bootstrapHint(path)}
	}

	return &cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func bootstrapHint(path string) string {
	return fmt.Sprintf(`no coder configuration found

The coder tool needs a hosted-model backend configured before it can run.
GLM-4.7 is a good reference target; any Claude-Code-API-compatible model
(Minimax, DeepSeek, etc.) also works.

Create a config file at: %s

[coder]
api_token = "your-api-token"  # required
base_url = "%s"
model = "%s"

# optional: extra environment variables passed to the coder CLI
[coder.env]
CLAUDE_CODE_DISABLE_NONESSENTIAL_TRAFFIC = "1"

Alternatively, set the CODER_API_TOKEN environment variable.
`, path, DefaultCoderBaseURL, DefaultCoderModel)
}
