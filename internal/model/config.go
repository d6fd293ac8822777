package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// APIConfig holds settings for the remote REST API.
type APIConfig struct {
	// BaseURL is the root URL of the API (e.g., https://api.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// MaxRetries is how often a rate-limited request is retried.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// StorageConfig holds settings for the local persistent store.
type StorageConfig struct {
	// Path is the SQLite file shared by every crewsync process of a profile.
	Path string `mapstructure:"path" yaml:"path"`

	// Debounce coalesces rapid saves of the same key into one write.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`

	// WatchInterval is how often the store checks for writes made by
	// other processes.
	WatchInterval time.Duration `mapstructure:"watch_interval" yaml:"watch_interval"`
}

// SyncConfig holds the poll interval of each domain container.
type SyncConfig struct {
	JobsInterval          time.Duration `mapstructure:"jobs_interval" yaml:"jobs_interval"`
	EmployeesInterval     time.Duration `mapstructure:"employees_interval" yaml:"employees_interval"`
	NotificationsInterval time.Duration `mapstructure:"notifications_interval" yaml:"notifications_interval"`
	ChatInterval          time.Duration `mapstructure:"chat_interval" yaml:"chat_interval"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// envPrefix namespaces environment overrides, e.g. CREWSYNC_LOG_LEVEL.
const envPrefix = "CREWSYNC"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/crewsync/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultStoragePath returns the default SQLite file location.
func DefaultStoragePath() string {
	return filepath.Join(configDir(), "crewsync.db")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "crewsync")
}

// defaults lists every key with its default. Registering all keys lets
// environment variables override values absent from the file.
func defaults() map[string]any {
	return map[string]any{
		"api.base_url":                "http://localhost:3000",
		"api.timeout":                 "15s",
		"api.max_retries":             3,
		"storage.path":                DefaultStoragePath(),
		"storage.debounce":            "500ms",
		"storage.watch_interval":      "250ms",
		"sync.jobs_interval":          "1500ms",
		"sync.employees_interval":     "5s",
		"sync.notifications_interval": "5s",
		"sync.chat_interval":          "5s",
		"log.level":                   "info",
		"log.format":                  "text",
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"api-url":   "api.base_url",
	"db":        "storage.path",
	"log-level": "log.level",
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error. Values are layered as defaults, file,
// environment (CREWSYNC_*, plus API_BASE_URL for the base URL), then any
// flags that were set explicitly. flags may be nil.
func LoadConfig(path string, flags *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api.base_url", envPrefix+"_API_URL", "API_BASE_URL"); err != nil {
		return nil, fmt.Errorf("binding api url env: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *AppConfig) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url must be set")
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path must be set")
	}
	for name, d := range map[string]time.Duration{
		"sync.jobs_interval":          c.Sync.JobsInterval,
		"sync.employees_interval":     c.Sync.EmployeesInterval,
		"sync.notifications_interval": c.Sync.NotificationsInterval,
		"sync.chat_interval":          c.Sync.ChatInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("api.max_retries", cfg.API.MaxRetries)
	v.Set("storage.path", cfg.Storage.Path)
	v.Set("storage.debounce", cfg.Storage.Debounce.String())
	v.Set("storage.watch_interval", cfg.Storage.WatchInterval.String())
	v.Set("sync.jobs_interval", cfg.Sync.JobsInterval.String())
	v.Set("sync.employees_interval", cfg.Sync.EmployeesInterval.String())
	v.Set("sync.notifications_interval", cfg.Sync.NotificationsInterval.String())
	v.Set("sync.chat_interval", cfg.Sync.ChatInterval.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
