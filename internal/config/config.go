// Package config loads Lectern runtime configuration from a TOML file and
// environment variables, exposing typed structs and accessors for all sections.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultLLMProfile = "default"

// Config is the runtime configuration loaded from defaults, config.toml, and env vars.
type Config struct {
	// HomeDir is runtime-resolved from LECTERN_HOME and not read from config.
	HomeDir   string                   `mapstructure:"-"`
	LLM       map[string]LLMConfig     `mapstructure:"llm"`
	Agent     AgentConfig              `mapstructure:"agent"`
	Catalog   CatalogConfig            `mapstructure:"catalog"`
	Ingest    IngestConfig             `mapstructure:"ingest"`
	Server    ServerConfig             `mapstructure:"server"`
	MCP       MCPConfig                `mapstructure:"mcp"`
	Session   SessionConfig            `mapstructure:"session"`
	Usage     UsageConfig              `mapstructure:"usage"`
	Scheduler SchedulerConfig          `mapstructure:"scheduler"`
	Channels  map[string]ChannelConfig `mapstructure:"channels"`
}

// LLMConfig configures one LLM provider profile.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AgentConfig controls the generation loop.
type AgentConfig struct {
	// MaxRounds caps tool-calling rounds before the forced final answer.
	MaxRounds int `mapstructure:"max_rounds"`
	// RecentExchanges is the number of prior user/assistant exchanges
	// replayed from session history.
	RecentExchanges int `mapstructure:"recent_exchanges"`
}

// CatalogConfig configures the course catalog store.
type CatalogConfig struct {
	// Path overrides the derived catalog database location when set.
	Path        string `mapstructure:"path"`
	SearchLimit int    `mapstructure:"search_limit"`
}

// IngestConfig controls document ingestion.
type IngestConfig struct {
	DocsDir      string `mapstructure:"docs_dir"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MCPConfig configures the MCP SSE endpoint served alongside the HTTP API.
// The stdio transport (`lectern mcp`) is always available and ignores this.
type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SessionConfig controls session lifecycle.
type SessionConfig struct {
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

// UsageConfig caps daily token spend. Zero means unlimited.
type UsageConfig struct {
	DailyTokenLimit int64 `mapstructure:"daily_token_limit"`
}

// SchedulerConfig holds cron expressions for background maintenance.
type SchedulerConfig struct {
	Rescan  string `mapstructure:"rescan"`
	Cleanup string `mapstructure:"cleanup"`
}

// ChannelConfig configures one inbound/outbound channel.
type ChannelConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

var defaultConfig = Config{
	LLM: map[string]LLMConfig{
		defaultLLMProfile: {
			APIKey:         "",
			Provider:       "anthropic",
			Model:          "claude-sonnet-4-20250514",
			MaxTokens:      800,
			Temperature:    0,
			RequestTimeout: 30 * time.Second,
		},
	},
	Agent: AgentConfig{
		MaxRounds:       2,
		RecentExchanges: 2,
	},
	Catalog: CatalogConfig{
		Path:        "",
		SearchLimit: 5,
	},
	Ingest: IngestConfig{
		DocsDir:      "docs",
		ChunkSize:    800,
		ChunkOverlap: 100,
	},
	Server: ServerConfig{
		Addr:           ":8000",
		RequestTimeout: 2 * time.Minute,
	},
	MCP: MCPConfig{
		Enabled: false,
		Addr:    ":8001",
	},
	Session: SessionConfig{
		IdleTTL: 30 * time.Minute,
	},
	Usage: UsageConfig{
		DailyTokenLimit: 0,
	},
	Scheduler: SchedulerConfig{
		Rescan:  "@hourly",
		Cleanup: "@every 15m",
	},
	Channels: map[string]ChannelConfig{
		"telegram": {
			Enabled: false,
			Token:   "",
		},
	},
}

// defaultUserConfig is the minimal bootstrap config written for first-time
// users. It intentionally contains only user-editable essentials and not the
// full runtime default surface.
var defaultUserConfig = Config{
	LLM: map[string]LLMConfig{
		defaultLLMProfile: {
			APIKey:         "$ANTHROPIC_API_KEY",
			Provider:       "anthropic",
			Model:          "claude-sonnet-4-20250514",
			RequestTimeout: 30 * time.Second,
		},
	},
	Ingest: IngestConfig{
		DocsDir: "docs",
	},
	Server: ServerConfig{
		Addr: ":8000",
	},
	Channels: map[string]ChannelConfig{
		"telegram": {
			Enabled: false,
			Token:   "",
		},
	},
}

// HomeDir returns the Lectern home directory.
// Uses LECTERN_HOME env var if set, otherwise defaults to ~/.lectern.
func HomeDir() (string, error) {
	if dir := os.Getenv("LECTERN_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return defaultHomePath(home), nil
}

// loadDotEnv loads environment variables from .env in the working directory.
// Missing files are ignored so .env stays optional.
func loadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load merges hardcoded defaults and config file values in that order.
// Config is always at $LECTERN_HOME/config.toml.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	homeDir, err := HomeDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HomeDir = homeDir

	return &cfg, nil
}

// Write writes the merged configuration (defaults overlaid by user
// config) to w in TOML format.
func Write(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}

	homeDir, err := HomeDir()
	if err != nil {
		return err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	// Keep duration fields human-readable in generated TOML.
	v.Set("llm.default.request_timeout", v.GetDuration("llm.default.request_timeout").String())
	v.Set("server.request_timeout", v.GetDuration("server.request_timeout").String())
	v.Set("session.idle_ttl", v.GetDuration("session.idle_ttl").String())

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultUserConfigTOML renders the minimal bootstrap user config as TOML.
func DefaultUserConfigTOML() (string, error) {
	v := viper.New()
	v.SetConfigType("toml")

	for profile, llm := range defaultUserConfig.LLM {
		v.Set("llm."+profile+".api_key", llm.APIKey)
		v.Set("llm."+profile+".provider", llm.Provider)
		v.Set("llm."+profile+".model", llm.Model)
		v.Set("llm."+profile+".request_timeout", llm.RequestTimeout.String())
	}
	v.Set("ingest.docs_dir", defaultUserConfig.Ingest.DocsDir)
	v.Set("server.addr", defaultUserConfig.Server.Addr)
	for channel, ch := range defaultUserConfig.Channels {
		v.Set("channels."+channel+".enabled", ch.Enabled)
		v.Set("channels."+channel+".token", ch.Token)
	}

	var out bytes.Buffer
	if err := v.WriteConfigTo(&out); err != nil {
		return "", fmt.Errorf("write default user config: %w", err)
	}
	return out.String(), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.default.api_key", defaultConfig.LLM[defaultLLMProfile].APIKey)
	v.SetDefault("llm.default.provider", defaultConfig.LLM[defaultLLMProfile].Provider)
	v.SetDefault("llm.default.model", defaultConfig.LLM[defaultLLMProfile].Model)
	v.SetDefault("llm.default.base_url", defaultConfig.LLM[defaultLLMProfile].BaseURL)
	v.SetDefault("llm.default.max_tokens", defaultConfig.LLM[defaultLLMProfile].MaxTokens)
	v.SetDefault("llm.default.temperature", defaultConfig.LLM[defaultLLMProfile].Temperature)
	v.SetDefault("llm.default.request_timeout", defaultConfig.LLM[defaultLLMProfile].RequestTimeout)

	v.SetDefault("agent.max_rounds", defaultConfig.Agent.MaxRounds)
	v.SetDefault("agent.recent_exchanges", defaultConfig.Agent.RecentExchanges)

	v.SetDefault("catalog.path", defaultConfig.Catalog.Path)
	v.SetDefault("catalog.search_limit", defaultConfig.Catalog.SearchLimit)

	v.SetDefault("ingest.docs_dir", defaultConfig.Ingest.DocsDir)
	v.SetDefault("ingest.chunk_size", defaultConfig.Ingest.ChunkSize)
	v.SetDefault("ingest.chunk_overlap", defaultConfig.Ingest.ChunkOverlap)

	v.SetDefault("server.addr", defaultConfig.Server.Addr)
	v.SetDefault("server.request_timeout", defaultConfig.Server.RequestTimeout)

	v.SetDefault("mcp.enabled", defaultConfig.MCP.Enabled)
	v.SetDefault("mcp.addr", defaultConfig.MCP.Addr)

	v.SetDefault("session.idle_ttl", defaultConfig.Session.IdleTTL)

	v.SetDefault("usage.daily_token_limit", defaultConfig.Usage.DailyTokenLimit)

	v.SetDefault("scheduler.rescan", defaultConfig.Scheduler.Rescan)
	v.SetDefault("scheduler.cleanup", defaultConfig.Scheduler.Cleanup)

	v.SetDefault("channels.telegram.enabled", defaultConfig.Channels["telegram"].Enabled)
	v.SetDefault("channels.telegram.token", defaultConfig.Channels["telegram"].Token)
}

// DefaultLLM returns the default LLM profile with fallback defaults.
func (c *Config) DefaultLLM() LLMConfig {
	if llm, ok := c.LLM[defaultLLMProfile]; ok {
		return llm
	}
	return defaultConfig.LLM[defaultLLMProfile]
}

// TelegramChannel returns Telegram channel config with fallback defaults.
func (c *Config) TelegramChannel() ChannelConfig {
	if ch, ok := c.Channels["telegram"]; ok {
		return ch
	}
	return defaultConfig.Channels["telegram"]
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}
