package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	DaemonPort          int           `mapstructure:"daemon_port"`
	DBPath              string        `mapstructure:"db_path"`
	LogFile             string        `mapstructure:"log_file"`
	AutoSync            bool          `mapstructure:"auto_sync"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	Debounce            time.Duration `mapstructure:"debounce"`
	Cooldown            time.Duration `mapstructure:"cooldown"`
	RemoteCheckInterval time.Duration `mapstructure:"remote_check_interval"`
	RemoteDir           string        `mapstructure:"remote_dir"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
	APIBaseURL          string        `mapstructure:"api_base_url"`
}

var Default = Config{
	DaemonPort:          9101,
	DBPath:              "reposync.db",
	AutoSync:            true,
	PollInterval:        time.Second,
	Debounce:            5 * time.Second,
	Cooldown:            3 * time.Second,
	RemoteCheckInterval: 5 * time.Minute,
	RemoteDir:           "",
	HTTPTimeout:         30 * time.Second,
	RequestsPerSecond:   5,
}

// Dir returns ~/.reposync, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	dir := filepath.Join(home, ".reposync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	return dir, nil
}

func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	return LoadFrom(dir)
}

func LoadFrom(configDir string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	viper.SetDefault("daemon_port", Default.DaemonPort)
	viper.SetDefault("db_path", filepath.Join(configDir, Default.DBPath))
	viper.SetDefault("log_file", Default.LogFile)
	viper.SetDefault("auto_sync", Default.AutoSync)
	viper.SetDefault("poll_interval", Default.PollInterval)
	viper.SetDefault("debounce", Default.Debounce)
	viper.SetDefault("cooldown", Default.Cooldown)
	viper.SetDefault("remote_check_interval", Default.RemoteCheckInterval)
	viper.SetDefault("remote_dir", Default.RemoteDir)
	viper.SetDefault("http_timeout", Default.HTTPTimeout)
	viper.SetDefault("requests_per_second", Default.RequestsPerSecond)
	viper.SetDefault("api_base_url", Default.APIBaseURL)

	viper.SetEnvPrefix("REPOSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return current()
}

func current() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Watch calls fn with the reloaded config every time the config file changes.
func Watch(fn func(*Config, error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		fn(current())
	})
	viper.WatchConfig()
}
