package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Discord  DiscordConfig  `yaml:"discord"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Linking  LinkingConfig  `yaml:"linking"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
	// PluginToken is the bearer token the proxy-side plugin authenticates
	// with on the /api/plugin endpoints.
	PluginToken string `yaml:"plugin_token"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DiscordConfig holds the bot settings
type DiscordConfig struct {
	BotToken       string `yaml:"bot_token"`
	GuildID        string `yaml:"guild_id"`
	LogChannelID   string `yaml:"log_channel_id"`
	PlayingMessage string `yaml:"playing_message"`
	// Track is the permission track whose groups map onto Discord roles.
	Track string `yaml:"track"`
}

// NATSConfig holds the connection to the proxy-side plugin bridge
type NATSConfig struct {
	URL string `yaml:"url"`
	// Embedded runs an in-process NATS server instead of connecting out,
	// for single-host deployments.
	Embedded     bool `yaml:"embedded"`
	EmbeddedPort int  `yaml:"embedded_port"`
}

// AuthConfig holds admin authentication settings
type AuthConfig struct {
	JWTSecret     string   `yaml:"jwt_secret"`
	TokenDuration Duration `yaml:"token_duration"`
}

// LinkingConfig holds link-code and reconciliation tuning
type LinkingConfig struct {
	TokenLifespan Duration `yaml:"token_lifespan"`
	Debounce      Duration `yaml:"debounce"`
}

// Duration is a time.Duration that unmarshals from strings like "30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8095
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/linkore/linkore.db"
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.EmbeddedPort == 0 {
		cfg.NATS.EmbeddedPort = 4222
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = Duration(24 * time.Hour)
	}
	if cfg.Linking.TokenLifespan == 0 {
		cfg.Linking.TokenLifespan = Duration(30 * time.Minute)
	}
	if cfg.Linking.Debounce == 0 {
		cfg.Linking.Debounce = Duration(500 * time.Millisecond)
	}

	return &cfg, nil
}

// Validate checks the settings that have no workable default.
func (c *Config) Validate() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("discord.bot_token is required")
	}
	if c.Discord.GuildID == "" {
		return fmt.Errorf("discord.guild_id is required")
	}
	if c.Discord.Track == "" {
		return fmt.Errorf("discord.track is required")
	}
	return nil
}
