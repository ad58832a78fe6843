// Package config loads ebrain settings from defaults, a config file, a
// dotenv file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/ebrain-io/ebrain/internal/provider"
	"github.com/ebrain-io/ebrain/internal/tool"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

const (
	envPrefix = "EBRAIN"
	// DefaultEnvFile is read when no --env-file is given. It may be missing.
	DefaultEnvFile = ".env"

	DefaultRedmineURL  = "http://localhost/redmine"
	DefaultAssistantID = "enterprise-brain"
)

// Channels a schedule can deliver to.
const (
	ChannelTelegram = "telegram"
	ChannelSlack    = "slack"
)

// Config is the top-level ebrain configuration.
type Config struct {
	Assistant  protocol.AgentSpec     `mapstructure:"assistant"`
	Provider   provider.Config        `mapstructure:"provider"`
	Redmine    RedmineConfig          `mapstructure:"redmine"`
	ServiceNow ServiceNowConfig       `mapstructure:"servicenow"`
	Store      StoreConfig            `mapstructure:"store"`
	API        APIConfig              `mapstructure:"api"`
	Connectors ConnectorConfig        `mapstructure:"connectors"`
	Schedules  []Schedule             `mapstructure:"schedules"`
	Tools      ToolsConfig            `mapstructure:"tools"`
	MCPServers []tool.MCPServerConfig `mapstructure:"mcp_servers"`
	Log        LogConfig              `mapstructure:"log"`
}

// Tool sources for the assistant.
const (
	ToolSourceLocal = "local"
	// ToolSourceMCP spawns "ebrain mcp" and calls the operations through it.
	ToolSourceMCP = "mcp"
)

// ToolsConfig selects where the assistant's operations run.
type ToolsConfig struct {
	Source string `mapstructure:"source"`
}

// RedmineConfig locates the issue tracker.
type RedmineConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// ServiceNowConfig locates the ITSM instance. A bearer token wins over
// username and password.
type ServiceNowConfig struct {
	Instance    string `mapstructure:"instance"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	AccessToken string `mapstructure:"access_token"`
}

// StoreConfig holds the session database location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	Key         string   `mapstructure:"api_key"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr is the listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// ConnectorConfig holds settings for chat platform connectors. A connector
// is enabled when its token is set.
type ConnectorConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Slack    SlackConfig    `mapstructure:"slack"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `mapstructure:"token"`
	AllowFrom []int64 `mapstructure:"allow_from"`
}

func (t TelegramConfig) Enabled() bool { return t.Token != "" }

// SlackConfig holds Slack socket-mode settings.
type SlackConfig struct {
	BotToken  string   `mapstructure:"bot_token"`
	AppToken  string   `mapstructure:"app_token"`
	AllowFrom []string `mapstructure:"allow_from"`
}

func (s SlackConfig) Enabled() bool { return s.BotToken != "" }

// Schedule is a recurring prompt whose answer is posted to a chat.
type Schedule struct {
	Name    string `mapstructure:"name"`
	Cron    string `mapstructure:"cron"`
	Prompt  string `mapstructure:"prompt"`
	Channel string `mapstructure:"channel"`
	ChatID  string `mapstructure:"chat_id"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json; empty picks per command
}

// Options control where Load looks.
type Options struct {
	// ConfigFile is an optional YAML, JSON or TOML file.
	ConfigFile string
	// EnvFile is a dotenv file. Empty means DefaultEnvFile, which may be
	// missing; an explicit file must exist.
	EnvFile string
	// Overrides are applied last, typically from CLI flags.
	Overrides map[string]any
}

// envBindings maps config keys to the environment names accepted for them,
// in lookup order. Every key also accepts EBRAIN_<KEY>.
var envBindings = []struct {
	key   string
	names []string
}{
	{"assistant.id", nil},
	{"assistant.model", nil},
	{"assistant.instructions", nil},
	{"assistant.language", nil},
	{"assistant.read_only", nil},
	{"assistant.max_iterations", nil},
	{"provider.type", nil},
	{"provider.api_key", []string{"OPENAI_API_KEY"}},
	{"provider.base_url", []string{"OPENAI_BASE_URL"}},
	{"provider.model", nil},
	{"redmine.url", []string{"REDMINE_URL"}},
	{"redmine.api_key", []string{"REDMINE_API_KEY"}},
	{"servicenow.instance", []string{"SNOW_INSTANCE"}},
	{"servicenow.username", []string{"SNOW_USER"}},
	{"servicenow.password", []string{"SNOW_PASS"}},
	{"servicenow.access_token", []string{"SNOW_TOKEN"}},
	{"store.path", nil},
	{"api.host", nil},
	{"api.port", nil},
	{"api.api_key", nil},
	{"api.cors_origins", nil},
	{"connectors.telegram.token", []string{"TELEGRAM_BOT_TOKEN"}},
	{"connectors.telegram.allow_from", nil},
	{"connectors.slack.bot_token", []string{"SLACK_BOT_TOKEN"}},
	{"connectors.slack.app_token", []string{"SLACK_APP_TOKEN"}},
	{"connectors.slack.allow_from", nil},
	{"tools.source", nil},
	{"log.level", nil},
	{"log.format", nil},
}

func envNames(key string, extra []string) []string {
	prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	return append([]string{prefixed}, extra...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("assistant.id", DefaultAssistantID)
	v.SetDefault("provider.type", "openai")
	v.SetDefault("redmine.url", DefaultRedmineURL)
	v.SetDefault("store.path", "ebrain.db")
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("tools.source", ToolSourceLocal)
	v.SetDefault("log.level", "info")
}

// Load reads configuration using the precedence:
// defaults < config file < dotenv file < environment < overrides.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for _, b := range envBindings {
		args := append([]string{b.key}, envNames(b.key, b.names)...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", b.key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.ConfigFile, err)
		}
	}

	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	if len(dotenv) > 0 {
		if err := v.MergeConfigMap(dotenv); err != nil {
			return nil, fmt.Errorf("config: merge env file: %w", err)
		}
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readEnvFile parses a dotenv file and maps the names it sets onto config
// keys as a nested map ready for MergeConfigMap.
func readEnvFile(path string) (map[string]any, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("config: env file: %w", err)
	}

	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}

	out := make(map[string]any)
	for _, b := range envBindings {
		for _, name := range envNames(b.key, b.names) {
			// viper lower-cases dotenv keys.
			lower := strings.ToLower(name)
			if !ev.IsSet(lower) {
				continue
			}
			setNested(out, b.key, ev.GetString(lower))
			break
		}
	}
	return out, nil
}

func setNested(m map[string]any, key string, val any) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = val
}

// Validate checks settings every command depends on. Problems are
// collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Assistant.ID == "" {
		errs = append(errs, "assistant.id is required")
	}
	if c.Assistant.MaxIterations < 0 {
		errs = append(errs, "assistant.max_iterations must not be negative")
	}
	if u, err := url.Parse(c.Redmine.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("redmine.url %q is not an absolute URL", c.Redmine.URL))
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}
	if c.Connectors.Slack.Enabled() && c.Connectors.Slack.AppToken == "" {
		errs = append(errs, "connectors.slack.app_token is required with a bot token")
	}
	if c.Tools.Source != ToolSourceLocal && c.Tools.Source != ToolSourceMCP {
		errs = append(errs, fmt.Sprintf("tools.source %q must be %s or %s", c.Tools.Source, ToolSourceLocal, ToolSourceMCP))
	}
	if !slices.Contains([]string{"", "debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	seen := make(map[string]bool)
	for i, s := range c.Schedules {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("schedules[%d].name %q is duplicated", i, s.Name))
		}
		seen[s.Name] = true
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("schedules[%d].cron %q: %v", i, s.Cron, err))
		}
		if strings.TrimSpace(s.Prompt) == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].prompt is required", i))
		}
		if s.Channel != ChannelTelegram && s.Channel != ChannelSlack {
			errs = append(errs, fmt.Sprintf("schedules[%d].channel must be %s or %s", i, ChannelTelegram, ChannelSlack))
		}
		if s.ChatID == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].chat_id is required", i))
		}
	}

	for i, m := range c.MCPServers {
		if m.Name == "" {
			errs = append(errs, fmt.Sprintf("mcp_servers[%d].name is required", i))
		}
		switch m.Transport {
		case "stdio":
			if m.Command == "" {
				errs = append(errs, fmt.Sprintf("mcp_servers[%d].command is required for stdio", i))
			}
		case "http":
			if m.URL == "" {
				errs = append(errs, fmt.Sprintf("mcp_servers[%d].url is required for http", i))
			}
		default:
			errs = append(errs, fmt.Sprintf("mcp_servers[%d].transport %q must be stdio or http", i, m.Transport))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateProvider checks the settings needed to run the assistant. The MCP
// host does not call it: it only exposes the operations.
func (c *Config) ValidateProvider() error {
	var errs []string
	switch c.Provider.Type {
	case "", "openai", "anthropic", "gemini":
	default:
		errs = append(errs, fmt.Sprintf("provider.type %q must be openai, anthropic or gemini", c.Provider.Type))
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, "provider.api_key is required (or OPENAI_API_KEY)")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateSchedules checks that every schedule has a connector to deliver to.
func (c *Config) ValidateSchedules() error {
	var errs []string
	for i, s := range c.Schedules {
		switch {
		case s.Channel == ChannelTelegram && !c.Connectors.Telegram.Enabled():
			errs = append(errs, fmt.Sprintf("schedules[%d] targets telegram but connectors.telegram.token is not set", i))
		case s.Channel == ChannelSlack && !c.Connectors.Slack.Enabled():
			errs = append(errs, fmt.Sprintf("schedules[%d] targets slack but connectors.slack.bot_token is not set", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
