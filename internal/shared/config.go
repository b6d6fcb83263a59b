package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

const placeholderClientID = "your_spotify_client_id"

// DefaultPlaylistName names a playlist when the user leaves the name blank.
const DefaultPlaylistName = "Generated Playlist"

// DefaultFallbackSeeds seed recommendations when the user has no recent top tracks.
var DefaultFallbackSeeds = []string{"4uLU6hMCjMI75M1A2tKUQC", "0VjIjW4GlUZAMYd2vXMi3b"}

// Environment variables that override values from the config file.
const (
	EnvClientID    = "MIXGEN_CLIENT_ID"
	EnvRedirectURI = "MIXGEN_REDIRECT_URI"
	EnvAuthURL     = "MIXGEN_AUTH_URL"
	EnvAPIBaseURL  = "MIXGEN_API_BASE_URL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Workflow    WorkflowConfig    `toml:"workflow"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains the implicit grant client settings.
//
// The implicit grant has no client secret.
type SpotifyConfig struct {
	ClientID    string `toml:"client_id"`
	RedirectURI string `toml:"redirect_uri"`
	AuthURL     string `toml:"auth_url"`
}

// ServerConfig contains settings for the local login callback server.
type ServerConfig struct {
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	LoginTimeoutSeconds int    `toml:"login_timeout_seconds"`
}

// CatalogConfig contains catalog API client settings.
type CatalogConfig struct {
	BaseURL        string  `toml:"base_url"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second, 0 disables throttling
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// WorkflowConfig contains playlist generation defaults.
type WorkflowConfig struct {
	DefaultName   string   `toml:"default_name"`
	Description   string   `toml:"description"`
	Public        bool     `toml:"public"`
	DefaultCount  int      `toml:"default_count"`
	DefaultGenre  string   `toml:"default_genre"`
	FallbackSeeds []string `toml:"fallback_seeds"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Addr returns the listen address of the callback server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoginTimeout returns how long to wait for the identity provider redirect.
func (s ServerConfig) LoginTimeout() time.Duration {
	if s.LoginTimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(s.LoginTimeoutSeconds) * time.Second
}

// Timeout returns the per-request HTTP timeout for the catalog client.
func (c CatalogConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// LoadConfigOrDefault loads the config at path when it exists and falls back to [DefaultConfig] otherwise.
//
// Environment overrides are applied in both cases.
func LoadConfigOrDefault(path string) (*Config, error) {
	config := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	config.ApplyEnv()
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnvFiles loads KEY=value pairs from the given dotenv files (".env" when none are given) into the process environment.
//
// Missing files are ignored; variables already set in the environment win.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values with any MIXGEN_* environment variables that are set.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvClientID)); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedirectURI)); v != "" {
		c.Credentials.Spotify.RedirectURI = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuthURL)); v != "" {
		c.Credentials.Spotify.AuthURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIBaseURL)); v != "" {
		c.Catalog.BaseURL = v
	}
}

// Validate checks the settings needed to run the login and playlist workflow.
func (c *Config) Validate() error {
	spotify := c.Credentials.Spotify
	if spotify.ClientID == "" || spotify.ClientID == placeholderClientID {
		return fmt.Errorf("%w: credentials.spotify.client_id (or %s) must be set", ErrMissingCredentials, EnvClientID)
	}

	redirect, err := url.Parse(spotify.RedirectURI)
	if err != nil || redirect.Scheme == "" || redirect.Host == "" {
		return fmt.Errorf("%w: credentials.spotify.redirect_uri %q is not an absolute URL", ErrInvalidConfig, spotify.RedirectURI)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}

	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("%w: catalog.base_url must be set", ErrInvalidConfig)
	}
	if c.Catalog.RateLimit < 0 {
		return fmt.Errorf("%w: catalog.rate_limit must not be negative", ErrInvalidConfig)
	}

	if len(c.Workflow.FallbackSeeds) == 0 {
		return fmt.Errorf("%w: workflow.fallback_seeds must not be empty", ErrInvalidConfig)
	}

	return nil
}
