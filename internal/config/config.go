// Package config holds the inboxctl configuration, read through viper from
// defaults, a YAML file and INBOX_* environment variables.
package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Config represents the complete inboxctl configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Mailbox MailboxConfig `mapstructure:"mailbox"`
	Store   StoreConfig   `mapstructure:"store"`
	Events  EventsConfig  `mapstructure:"events"`
	Log     LogConfig     `mapstructure:"log"`
}

// APIConfig locates the message service
type APIConfig struct {
	// BaseURL is the service origin, e.g. "http://localhost:8888"
	BaseURL string `mapstructure:"base_url"`
	// BasePath is prefixed to every endpoint (default: "/api/v1")
	BasePath string `mapstructure:"base_path"`
	// Timeout bounds every request (default: 10s)
	Timeout time.Duration `mapstructure:"timeout"`
	// OTel records client spans and metrics for every request
	OTel bool `mapstructure:"otel"`
}

// MailboxConfig controls paging and unread polling
type MailboxConfig struct {
	PageSize     int           `mapstructure:"page_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// LatestLoadWins keeps the most recently issued load instead of the
	// last one to complete
	LatestLoadWins bool `mapstructure:"latest_load_wins"`
}

// StoreConfig selects where the session survives between runs
type StoreConfig struct {
	// Type is one of "memory", "file", "redis", "postgres", "mongo"
	Type string `mapstructure:"type"`
	// Path is the session file for the file store
	Path string `mapstructure:"path"`
	// SealKey is a hex encoded 32 byte key encrypting the session file
	SealKey string `mapstructure:"seal_key"`
	// DSN is the postgres connection string
	DSN string `mapstructure:"dsn"`
	// Addr is the redis address
	Addr string `mapstructure:"addr"`
	// URI is the mongo connection string
	URI string `mapstructure:"uri"`
	// Database is the mongo database
	Database string `mapstructure:"database"`
	// Namespace isolates sessions of different profiles sharing a backend
	Namespace string        `mapstructure:"namespace"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EventsConfig selects the event bus transport
type EventsConfig struct {
	// Transport is one of "none", "channel", "redis"
	Transport string `mapstructure:"transport"`
	// RedisAddr is used by the redis transport; defaults to store.addr
	RedisAddr string `mapstructure:"redis_addr"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Format is "text" or "json"
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  "http://localhost:8888",
			BasePath: "/api/v1",
			Timeout:  10 * time.Second,
		},
		Mailbox: MailboxConfig{
			PageSize:     20,
			PollInterval: 10 * time.Second,
		},
		Store: StoreConfig{
			Type:     "file",
			Path:     filepath.Join(ConfigDir(), "session.json"),
			Database: "inbox",
			Timeout:  5 * time.Second,
		},
		Events: EventsConfig{
			Transport: "none",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// SetDefaults registers every default with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("api.base_url", defaults.API.BaseURL)
	viper.SetDefault("api.base_path", defaults.API.BasePath)
	viper.SetDefault("api.timeout", defaults.API.Timeout)
	viper.SetDefault("api.otel", defaults.API.OTel)

	viper.SetDefault("mailbox.page_size", defaults.Mailbox.PageSize)
	viper.SetDefault("mailbox.poll_interval", defaults.Mailbox.PollInterval)
	viper.SetDefault("mailbox.latest_load_wins", defaults.Mailbox.LatestLoadWins)

	viper.SetDefault("store.type", defaults.Store.Type)
	viper.SetDefault("store.path", defaults.Store.Path)
	viper.SetDefault("store.seal_key", defaults.Store.SealKey)
	viper.SetDefault("store.dsn", defaults.Store.DSN)
	viper.SetDefault("store.addr", defaults.Store.Addr)
	viper.SetDefault("store.uri", defaults.Store.URI)
	viper.SetDefault("store.database", defaults.Store.Database)
	viper.SetDefault("store.namespace", defaults.Store.Namespace)
	viper.SetDefault("store.timeout", defaults.Store.Timeout)

	viper.SetDefault("events.transport", defaults.Events.Transport)
	viper.SetDefault("events.redis_addr", defaults.Events.RedisAddr)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.format", defaults.Log.Format)
}

// Init points viper at cfgFile, or at config.yaml in the usual places when
// it is empty, and enables INBOX_* environment overrides.
// A missing config file is not an error.
func Init(cfgFile string) error {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("INBOX")
	// INBOX_API_BASE_URL for api.base_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// Load unmarshals and validates the current viper state
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "inbox")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".inbox"
	}
	return filepath.Join(home, ".config", "inbox")
}

// YAML renders the configuration as it would appear in config.yaml.
// The seal key is redacted.
func (c *Config) YAML() ([]byte, error) {
	sealKey := ""
	if c.Store.SealKey != "" {
		sealKey = "<redacted>"
	}
	return yaml.Marshal(yaml.MapSlice{
		{Key: "api", Value: yaml.MapSlice{
			{Key: "base_url", Value: c.API.BaseURL},
			{Key: "base_path", Value: c.API.BasePath},
			{Key: "timeout", Value: c.API.Timeout.String()},
			{Key: "otel", Value: c.API.OTel},
		}},
		{Key: "mailbox", Value: yaml.MapSlice{
			{Key: "page_size", Value: c.Mailbox.PageSize},
			{Key: "poll_interval", Value: c.Mailbox.PollInterval.String()},
			{Key: "latest_load_wins", Value: c.Mailbox.LatestLoadWins},
		}},
		{Key: "store", Value: yaml.MapSlice{
			{Key: "type", Value: c.Store.Type},
			{Key: "path", Value: c.Store.Path},
			{Key: "seal_key", Value: sealKey},
			{Key: "dsn", Value: c.Store.DSN},
			{Key: "addr", Value: c.Store.Addr},
			{Key: "uri", Value: c.Store.URI},
			{Key: "database", Value: c.Store.Database},
			{Key: "namespace", Value: c.Store.Namespace},
			{Key: "timeout", Value: c.Store.Timeout.String()},
		}},
		{Key: "events", Value: yaml.MapSlice{
			{Key: "transport", Value: c.Events.Transport},
			{Key: "redis_addr", Value: c.Events.RedisAddr},
		}},
		{Key: "log", Value: yaml.MapSlice{
			{Key: "level", Value: c.Log.Level},
			{Key: "format", Value: c.Log.Format},
		}},
	})
}

// SlogLevel converts the configured level, defaulting to warn
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Logger builds a text or JSON slog logger writing to stderr
func (l LogConfig) Logger() *slog.Logger {
	return l.LoggerTo(os.Stderr)
}

// LoggerTo builds a text or JSON slog logger writing to w
func (l LogConfig) LoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
