package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the optional project file that overrides API and provider settings
const FileName = "shopsync.yaml"

const configDirName = "shopsync"

// Config holds all configuration for the shopsync client and dev server
type Config struct {
	// Base URL of the storefront REST API
	APIURL string `env:"SHOPSYNC_API_URL" envDefault:"http://localhost:8000" yaml:"api_url"`

	Storage   StorageConfig
	Logging   LoggingConfig
	Providers ProvidersConfig `yaml:"providers"`
	Dev       DevServerConfig
}

// StorageConfig selects the durable storage backend
type StorageConfig struct {
	Backend      string `env:"SHOPSYNC_STORAGE" envDefault:"file"` // memory, file, sqlite, redis
	Path         string `env:"SHOPSYNC_STORAGE_PATH"`
	SecureTokens bool   `env:"SHOPSYNC_SECURE_TOKENS" envDefault:"false"`
	RedisAddress string `env:"SHOPSYNC_REDIS_ADDRESS" envDefault:"localhost:6379"`
	RedisPrefix  string `env:"SHOPSYNC_REDIS_PREFIX" envDefault:"shopsync"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `env:"SHOPSYNC_LOG_LEVEL" envDefault:"warn"`
	Format string `env:"SHOPSYNC_LOG_FORMAT" envDefault:"console"` // json, console
}

// ProvidersConfig holds third-party identity provider settings
type ProvidersConfig struct {
	Google GoogleConfig `yaml:"google"`
	GitHub GitHubConfig `yaml:"github"`
}

// GoogleConfig configures the identity-token widget
type GoogleConfig struct {
	ClientID string `env:"SHOPSYNC_GOOGLE_CLIENT_ID" yaml:"client_id"`
}

// GitHubConfig configures the authorization-code redirect flow
type GitHubConfig struct {
	ClientID    string   `env:"SHOPSYNC_GITHUB_CLIENT_ID" yaml:"client_id"`
	RedirectURI string   `env:"SHOPSYNC_GITHUB_REDIRECT_URI" envDefault:"http://127.0.0.1:8765/login" yaml:"redirect_uri"`
	Scopes      []string `env:"SHOPSYNC_GITHUB_SCOPES" envSeparator:"," envDefault:"user:email" yaml:"scopes"`
	AuthURL     string   `env:"SHOPSYNC_GITHUB_AUTH_URL" envDefault:"https://github.com/login/oauth/authorize" yaml:"auth_url"`
}

// DevServerConfig configures the local stub backend
type DevServerConfig struct {
	Addr           string   `env:"SHOPSYNC_DEV_ADDR" envDefault:":8000"`
	DatabaseURL    string   `env:"SHOPSYNC_DEV_DATABASE_URL" envDefault:"shopsync-dev.sqlite"`
	JWTSecret      string   `env:"SHOPSYNC_DEV_JWT_SECRET" envDefault:"dev-secret-change-me"`
	AllowedOrigins []string `env:"SHOPSYNC_DEV_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	SeedEmail      string   `env:"SHOPSYNC_DEV_SEED_EMAIL" envDefault:"admin@example.com"`
	SeedPassword   string   `env:"SHOPSYNC_DEV_SEED_PASSWORD" envDefault:"password123"`
	SeedName       string   `env:"SHOPSYNC_DEV_SEED_NAME" envDefault:"Admin User"`
}

// Load loads configuration from the environment and an optional shopsync.yaml
// found in the current directory or any parent directory
func Load() (*Config, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadFromDir(currentDir)
}

// LoadFromDir is Load rooted at dir instead of the working directory
func LoadFromDir(dir string) (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	_ = godotenv.Load(filepath.Join(dir, ".env.local"))

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if path, ok := FindConfigFile(dir); ok {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.Storage.Path == "" {
		path, err := DefaultStoragePath(cfg.Storage.Backend)
		if err != nil {
			return nil, err
		}
		cfg.Storage.Path = path
	}

	return &cfg, nil
}

// FindConfigFile searches for shopsync.yaml in dir and its parent directories
func FindConfigFile(dir string) (string, bool) {
	for {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return "", false
		}
		dir = parent
	}
}

// fileConfig mirrors the subset of Config that shopsync.yaml may set
type fileConfig struct {
	APIURL    string          `yaml:"api_url"`
	Providers ProvidersConfig `yaml:"providers"`
}

// applyFile overlays non-empty values from the YAML file
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.APIURL != "" {
		c.APIURL = fc.APIURL
	}
	if fc.Providers.Google.ClientID != "" {
		c.Providers.Google.ClientID = fc.Providers.Google.ClientID
	}
	gh := fc.Providers.GitHub
	if gh.ClientID != "" {
		c.Providers.GitHub.ClientID = gh.ClientID
	}
	if gh.RedirectURI != "" {
		c.Providers.GitHub.RedirectURI = gh.RedirectURI
	}
	if len(gh.Scopes) > 0 {
		c.Providers.GitHub.Scopes = gh.Scopes
	}
	if gh.AuthURL != "" {
		c.Providers.GitHub.AuthURL = gh.AuthURL
	}

	return nil
}

// DefaultStoragePath returns ~/.config/shopsync/<file> for file-backed storage
func DefaultStoragePath(backend string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	name := "storage.json"
	if backend == "sqlite" {
		name = "storage.db"
	}
	return filepath.Join(homeDir, ".config", configDirName, name), nil
}
