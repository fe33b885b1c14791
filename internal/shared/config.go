package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Google    GoogleConfig    `toml:"google"`
	Downloads DownloadsConfig `toml:"downloads"`
	Auth      AuthConfig      `toml:"auth"`
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
}

// GoogleConfig contains the OAuth client registration for Google Drive.
type GoogleConfig struct {
	ClientID          string   `toml:"client_id"`
	ClientSecret      string   `toml:"client_secret"`
	ClientSecretsFile string   `toml:"client_secrets_file"`
	RedirectURI       string   `toml:"redirect_uri"`
	Scopes            []string `toml:"scopes"`
	ForceConsent      bool     `toml:"force_consent"`
}

// DownloadsConfig controls where and how fast files are fetched.
type DownloadsConfig struct {
	Dir       string  `toml:"dir"`
	RateLimit float64 `toml:"rate_limit"`
}

// AuthConfig contains CLI credential storage settings.
type AuthConfig struct {
	TokenPath string `toml:"token_path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	SessionKey      string `toml:"session_key"`
	PersistSessions bool   `toml:"persist_sessions"`
}

// Addr returns the host:port the web relay listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// HasClient reports whether OAuth client credentials are available, either inline or via a secrets file.
func (g GoogleConfig) HasClient() bool {
	if g.ClientSecretsFile != "" {
		return true
	}
	return g.ClientID != "" && g.ClientSecret != "" && !strings.HasPrefix(g.ClientID, "your_")
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.Auth.TokenPath = ExpandHome(config.Auth.TokenPath)
	config.Google.ClientSecretsFile = ExpandHome(config.Google.ClientSecretsFile)
	return config, nil
}

// LoadOrDefault loads the config at path when it exists and falls back to defaults otherwise.
func LoadOrDefault(path string) *Config {
	if _, err := os.Stat(path); err == nil {
		if config, err := LoadConfig(path); err == nil {
			return config
		}
	}
	return DefaultConfig()
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.Auth.TokenPath = ExpandHome(config.Auth.TokenPath)
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, ErrInvalidArgument)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config back to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
