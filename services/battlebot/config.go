package battlebot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"musicbattle/battle"
	"musicbattle/settlement"
	"musicbattle/tracks"
)

// Duration wraps time.Duration to support human readable YAML and TOML values.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText parses human readable duration strings. TOML decoding uses it.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for the battle bot.
type Config struct {
	ListenAddress string           `yaml:"listen" toml:"listen"`
	Genres        []GenreConfig    `yaml:"genres" toml:"genres"`
	Creators      []CreatorConfig  `yaml:"creators" toml:"creators"`
	Tracks        TracksConfig     `yaml:"tracks" toml:"tracks"`
	Settlement    SettlementConfig `yaml:"settlement" toml:"settlement"`
	Callback      CallbackConfig   `yaml:"callback" toml:"callback"`
	Wallets       WalletsConfig    `yaml:"wallets" toml:"wallets"`
	Dedupe        DedupeConfig     `yaml:"dedupe" toml:"dedupe"`
	Journal       JournalConfig    `yaml:"journal" toml:"journal"`
	RateLimit     RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
	Auth          AuthConfig       `yaml:"auth" toml:"auth"`
	Relay         RelayConfig      `yaml:"relay" toml:"relay"`
	Log           LogConfig        `yaml:"log" toml:"log"`
	Telemetry     TelemetryConfig  `yaml:"telemetry" toml:"telemetry"`
}

// GenreConfig prices a genre. Amount is a whole number of payment units.
type GenreConfig struct {
	Name   string `yaml:"name" toml:"name"`
	Amount string `yaml:"amount" toml:"amount"`
}

// CreatorConfig is one payout address of the creator pool.
type CreatorConfig struct {
	Address string `yaml:"address" toml:"address"`
	Label   string `yaml:"label" toml:"label"`
}

// TracksConfig selects the track-selection provider.
type TracksConfig struct {
	Provider string                          `yaml:"provider" toml:"provider"`
	Catalog  map[string][]tracks.CatalogSong `yaml:"catalog" toml:"catalog"`
	Spotify  SpotifyConfig                   `yaml:"spotify" toml:"spotify"`
}

// SpotifyConfig holds the client-credentials settings for Spotify search.
type SpotifyConfig struct {
	ClientID         string   `yaml:"client_id" toml:"client_id"`
	ClientSecret     string   `yaml:"client_secret" toml:"client_secret"`
	ClientSecretEnv  string   `yaml:"client_secret_env" toml:"client_secret_env"`
	ClientSecretFile string   `yaml:"client_secret_file" toml:"client_secret_file"`
	BaseURL          string   `yaml:"base_url" toml:"base_url"`
	TokenURL         string   `yaml:"token_url" toml:"token_url"`
	Limit            int      `yaml:"limit" toml:"limit"`
	Timeout          Duration `yaml:"timeout" toml:"timeout"`
}

// SettlementConfig points at the settlement backend.
type SettlementConfig struct {
	BaseURL       string   `yaml:"base_url" toml:"base_url"`
	AuthToken     string   `yaml:"auth_token" toml:"auth_token"`
	AuthTokenEnv  string   `yaml:"auth_token_env" toml:"auth_token_env"`
	AuthTokenFile string   `yaml:"auth_token_file" toml:"auth_token_file"`
	Timeout       Duration `yaml:"timeout" toml:"timeout"`
}

// CallbackConfig configures the outbound message callback. Without a URL,
// replies to webhook deliveries are returned inline in the HTTP response.
type CallbackConfig struct {
	URL          string   `yaml:"url" toml:"url"`
	AuthToken    string   `yaml:"auth_token" toml:"auth_token"`
	AuthTokenEnv string   `yaml:"auth_token_env" toml:"auth_token_env"`
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
}

// WalletsConfig selects the wallet registry persister.
type WalletsConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// DedupeConfig controls duplicate delivery suppression.
type DedupeConfig struct {
	Driver string   `yaml:"driver" toml:"driver"`
	Path   string   `yaml:"path" toml:"path"`
	Window Duration `yaml:"window" toml:"window"`
}

// JournalConfig configures the activity journal. An empty driver disables it.
type JournalConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
	DSNEnv string `yaml:"dsn_env" toml:"dsn_env"`
}

// RateLimitConfig throttles inbound events per participant.
type RateLimitConfig struct {
	EventsPerMinute float64 `yaml:"events_per_minute" toml:"events_per_minute"`
	Burst           int     `yaml:"burst" toml:"burst"`
}

// AuthConfig secures the webhook and relay endpoints with HMAC-signed JWTs.
type AuthConfig struct {
	Disabled       bool     `yaml:"disabled" toml:"disabled"`
	HMACSecret     string   `yaml:"hmac_secret" toml:"hmac_secret"`
	HMACSecretEnv  string   `yaml:"hmac_secret_env" toml:"hmac_secret_env"`
	HMACSecretFile string   `yaml:"hmac_secret_file" toml:"hmac_secret_file"`
	Issuer         string   `yaml:"issuer" toml:"issuer"`
	Audience       string   `yaml:"audience" toml:"audience"`
	ClockSkew      Duration `yaml:"clock_skew" toml:"clock_skew"`
}

// RelayConfig tunes the websocket relay.
type RelayConfig struct {
	Concurrency    int64    `yaml:"concurrency" toml:"concurrency"`
	OriginPatterns []string `yaml:"origin_patterns" toml:"origin_patterns"`
}

// LogConfig controls log level and optional file rotation.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// TelemetryConfig controls OTLP export.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool              `yaml:"insecure" toml:"insecure"`
	Headers     map[string]string `yaml:"headers" toml:"headers"`
	Metrics     bool              `yaml:"metrics" toml:"metrics"`
	Traces      bool              `yaml:"traces" toml:"traces"`
	SampleRatio float64           `yaml:"sample_ratio" toml:"sample_ratio"`
}

// LoadConfig reads configuration from the supplied path. Files ending in
// .toml are decoded as TOML, everything else as YAML.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.NewDecoder(bytes.NewReader(raw)).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.normalise(); err != nil {
		return cfg, err
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Tracks.Provider = strings.ToLower(strings.TrimSpace(cfg.Tracks.Provider))
	cfg.Wallets.Driver = strings.ToLower(strings.TrimSpace(cfg.Wallets.Driver))
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8088"
	}
	if len(cfg.Genres) == 0 {
		for _, g := range battle.DefaultGenres() {
			cfg.Genres = append(cfg.Genres, GenreConfig{Name: g.Name, Amount: g.Amount.String()})
		}
	}
	if len(cfg.Creators) == 0 {
		for _, c := range battle.DefaultCreators() {
			cfg.Creators = append(cfg.Creators, CreatorConfig{Address: c.Address, Label: c.Label})
		}
	}
	if cfg.Tracks.Provider == "" {
		cfg.Tracks.Provider = "catalog"
	}
	if cfg.Tracks.Provider == "catalog" && len(cfg.Tracks.Catalog) == 0 {
		cfg.Tracks.Catalog = tracks.DefaultCatalog()
	}
	if cfg.Settlement.Timeout.Duration == 0 {
		cfg.Settlement.Timeout.Duration = 15 * time.Second
	}
	if cfg.Callback.Timeout.Duration == 0 {
		cfg.Callback.Timeout.Duration = 10 * time.Second
	}
	if cfg.Wallets.Driver == "" {
		cfg.Wallets.Driver = "file"
	}
	if cfg.Wallets.Path == "" {
		if cfg.Wallets.Driver == "bolt" {
			cfg.Wallets.Path = "wallets.db"
		} else {
			cfg.Wallets.Path = "user_wallets.json"
		}
	}
	if cfg.Dedupe.Driver == "" {
		cfg.Dedupe.Driver = "memory"
	}
	if cfg.Dedupe.Window.Duration == 0 {
		cfg.Dedupe.Window.Duration = 10 * time.Minute
	}
	if cfg.RateLimit.EventsPerMinute == 0 {
		cfg.RateLimit.EventsPerMinute = 30
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 5
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.Relay.Concurrency <= 0 {
		cfg.Relay.Concurrency = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func (c *Config) normalise() error {
	c.Dedupe.Driver = strings.ToLower(strings.TrimSpace(c.Dedupe.Driver))
	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	c.Settlement.BaseURL = strings.TrimSpace(c.Settlement.BaseURL)
	c.Callback.URL = strings.TrimSpace(c.Callback.URL)

	var err error
	if c.Settlement.AuthToken, err = resolveSecret(c.Settlement.AuthToken, c.Settlement.AuthTokenEnv, c.Settlement.AuthTokenFile); err != nil {
		return fmt.Errorf("settlement auth_token: %w", err)
	}
	if c.Callback.AuthToken, err = resolveSecret(c.Callback.AuthToken, c.Callback.AuthTokenEnv, ""); err != nil {
		return fmt.Errorf("callback auth_token: %w", err)
	}
	if c.Auth.HMACSecret, err = resolveSecret(c.Auth.HMACSecret, c.Auth.HMACSecretEnv, c.Auth.HMACSecretFile); err != nil {
		return fmt.Errorf("auth hmac_secret: %w", err)
	}
	if c.Journal.DSN, err = resolveSecret(c.Journal.DSN, c.Journal.DSNEnv, ""); err != nil {
		return fmt.Errorf("journal dsn: %w", err)
	}
	sp := &c.Tracks.Spotify
	if sp.ClientSecret, err = resolveSecret(sp.ClientSecret, sp.ClientSecretEnv, sp.ClientSecretFile); err != nil {
		return fmt.Errorf("spotify client_secret: %w", err)
	}
	return nil
}

// resolveSecret returns the inline value, or the named environment variable,
// or the trimmed contents of the file, in that order. A named but empty
// source is an error.
func resolveSecret(value, envName, file string) (string, error) {
	value = strings.TrimSpace(value)
	if value != "" {
		return value, nil
	}
	if envName = strings.TrimSpace(envName); envName != "" {
		resolved := strings.TrimSpace(os.Getenv(envName))
		if resolved == "" {
			return "", fmt.Errorf("env %s is empty", envName)
		}
		return resolved, nil
	}
	if file = strings.TrimSpace(file); file != "" {
		contents, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return strings.TrimSpace(string(contents)), nil
	}
	return "", nil
}

func validateConfig(cfg Config) error {
	if cfg.Settlement.BaseURL == "" {
		return fmt.Errorf("settlement base_url must be configured")
	}
	if _, err := cfg.genreBook(); err != nil {
		return err
	}
	if _, err := cfg.creatorPool(); err != nil {
		return err
	}
	switch cfg.Tracks.Provider {
	case "catalog":
	case "spotify":
		if strings.TrimSpace(cfg.Tracks.Spotify.ClientID) == "" || cfg.Tracks.Spotify.ClientSecret == "" {
			return fmt.Errorf("spotify client_id and client_secret must be configured")
		}
	default:
		return fmt.Errorf("unknown tracks provider %q", cfg.Tracks.Provider)
	}
	switch cfg.Wallets.Driver {
	case "file", "bolt":
	default:
		return fmt.Errorf("unknown wallets driver %q", cfg.Wallets.Driver)
	}
	switch cfg.Dedupe.Driver {
	case "memory":
	case "leveldb":
		if strings.TrimSpace(cfg.Dedupe.Path) == "" {
			return fmt.Errorf("dedupe path must be configured for leveldb")
		}
	default:
		return fmt.Errorf("unknown dedupe driver %q", cfg.Dedupe.Driver)
	}
	switch cfg.Journal.Driver {
	case "":
	case "sqlite", "postgres":
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal dsn must be configured")
		}
	default:
		return fmt.Errorf("unknown journal driver %q", cfg.Journal.Driver)
	}
	if cfg.RateLimit.EventsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if !cfg.Auth.Disabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("configure auth hmac_secret or set auth.disabled")
	}
	return nil
}

func (c Config) genreBook() (*battle.GenreBook, error) {
	genres := make([]battle.Genre, 0, len(c.Genres))
	for _, g := range c.Genres {
		amount, err := settlement.ParseAmount(g.Amount)
		if err != nil {
			return nil, fmt.Errorf("genre %q amount: %w", g.Name, err)
		}
		genres = append(genres, battle.Genre{Name: strings.TrimSpace(g.Name), Amount: amount})
	}
	return battle.NewGenreBook(genres)
}

func (c Config) creatorPool() (*battle.CreatorPool, error) {
	creators := make([]battle.Creator, 0, len(c.Creators))
	for _, cr := range c.Creators {
		creators = append(creators, battle.Creator{Address: strings.TrimSpace(cr.Address), Label: strings.TrimSpace(cr.Label)})
	}
	return battle.NewCreatorPool(creators)
}
