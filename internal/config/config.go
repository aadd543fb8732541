// Package config loads DocFlow settings.
//
// Precedence, lowest first: built-in defaults, docflow.yaml (or .toml) in the
// data directory or the file given with --config, DOCFLOW_* environment
// variables (a .env file is loaded into the environment first), and finally
// command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pacetech/docflow/internal/docflow/auth"
	"github.com/pacetech/docflow/internal/docflow/docpath"
	"github.com/pacetech/docflow/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g. DOCFLOW_API_ENDPOINT.
const EnvPrefix = "DOCFLOW"

// FileName is the config file base name looked up in the data directory.
const FileName = "docflow"

type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	DBPath    string          `mapstructure:"db_path"`
	InboxDir  string          `mapstructure:"inbox_dir"`
	Log       LogConfig       `mapstructure:"log"`
	API       APIConfig       `mapstructure:"api"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Docs      DocsConfig      `mapstructure:"docs"`
	FormTypes FormTypesConfig `mapstructure:"formtypes"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type APIConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	Mode         string   `mapstructure:"mode"`
	Token        string   `mapstructure:"token"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
}

type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	RetryErrored  bool          `mapstructure:"retry_errored"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

type DocsConfig struct {
	Library  string `mapstructure:"library"`
	SitePath string `mapstructure:"site_path"`
}

type FormTypesConfig struct {
	File string `mapstructure:"file"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultDataDir returns ~/.docflow, or ./.docflow when no home directory exists.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".docflow"
	}
	return filepath.Join(home, ".docflow")
}

// New returns a viper instance with defaults and environment binding set up.
// Callers bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("db_path", "")
	v.SetDefault("inbox_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("api.endpoint", "")
	v.SetDefault("api.timeout", 60*time.Second)

	v.SetDefault("auth.mode", auth.ModeStatic)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.token_url", "")
	v.SetDefault("auth.scopes", []string{})

	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.settle_delay", time.Second)
	v.SetDefault("sync.probe_interval", 30*time.Second)
	v.SetDefault("sync.retry_errored", true)
	v.SetDefault("sync.max_attempts", 0)

	v.SetDefault("docs.library", docpath.DefaultLibrary)
	v.SetDefault("docs.site_path", docpath.DefaultSitePath)

	v.SetDefault("formtypes.file", "")
	v.SetDefault("dashboard.port", 8080)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads .env files, the config file and the environment into a Config.
// configFile overrides the data-directory lookup when set.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := loadDotEnv(filepath.Join(v.GetString("data_dir"), ".env")); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(v.GetString("data_dir"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file read, if any.
func ConfigFileUsed(v *viper.Viper) string {
	return v.ConfigFileUsed()
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyDerived fills paths that default to locations inside the data directory.
func (c *Config) applyDerived() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "docflow.db")
	}
	if c.InboxDir == "" {
		c.InboxDir = filepath.Join(c.DataDir, "inbox")
	}
	c.Auth.Mode = strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	if c.Auth.Mode == "" {
		c.Auth.Mode = auth.ModeStatic
	}
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive (got %s)", c.API.Timeout)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive (got %s)", c.Sync.Interval)
	}
	if c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("sync.probe_interval must be positive (got %s)", c.Sync.ProbeInterval)
	}
	if c.Sync.SettleDelay < 0 {
		return fmt.Errorf("sync.settle_delay must not be negative (got %s)", c.Sync.SettleDelay)
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("sync.max_attempts must not be negative (got %d)", c.Sync.MaxAttempts)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range (got %d)", c.Dashboard.Port)
	}

	switch c.Auth.Mode {
	case auth.ModeNone, auth.ModeStatic:
	case auth.ModeClientCredentials:
		if c.Auth.ClientID == "" || c.Auth.TokenURL == "" {
			return fmt.Errorf("auth.mode %s requires auth.client_id and auth.token_url", c.Auth.Mode)
		}
	default:
		return fmt.Errorf("unknown auth.mode %q", c.Auth.Mode)
	}
	return nil
}

// RequireEndpoint reports a configuration error when no remote endpoint is set.
func (c *Config) RequireEndpoint() error {
	if strings.TrimSpace(c.API.Endpoint) == "" {
		return fmt.Errorf("api.endpoint is not configured (set %s_API_ENDPOINT or api.endpoint in %s.yaml)", EnvPrefix, FileName)
	}
	return nil
}

// AuthProviderConfig converts the auth section for auth.New.
func (c *Config) AuthProviderConfig() auth.Config {
	return auth.Config{
		Mode:         c.Auth.Mode,
		Token:        c.Auth.Token,
		ClientID:     c.Auth.ClientID,
		ClientSecret: c.Auth.ClientSecret,
		TokenURL:     c.Auth.TokenURL,
		Scopes:       c.Auth.Scopes,
	}
}

// LoggingOptions converts the log section for logging.New.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

// DocPaths converts the docs section for docpath.Derive.
func (c *Config) DocPaths() docpath.Options {
	return docpath.Options{
		Library:  c.Docs.Library,
		SitePath: c.Docs.SitePath,
	}
}
