package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralt/publishkit/internal/models"
	"github.com/ralt/publishkit/internal/utils"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Repositories RepositoriesConfig `yaml:"repositories"`
	Credentials  CredentialsConfig  `yaml:"credentials"`
	Escrow       EscrowConfig       `yaml:"escrow"`
	History      HistoryConfig      `yaml:"history"`
	Signing      SigningConfig      `yaml:"signing"`
}

// RepositoriesConfig holds the three publish destinations
type RepositoriesConfig struct {
	Snapshot models.RepositoryConfig `yaml:"snapshot"`
	Staging  models.RepositoryConfig `yaml:"staging"`
	Release  models.RepositoryConfig `yaml:"release"`
}

// CredentialsConfig names the environment variables holding upload credentials
type CredentialsConfig struct {
	UserEnv string `yaml:"user_env"`
	KeyEnv  string `yaml:"key_env"`
}

// EscrowConfig holds escrow packaging settings
type EscrowConfig struct {
	OutputDir       string   `yaml:"output_dir"`
	Compression     string   `yaml:"compression"`
	Exclude         []string `yaml:"exclude"`
	AllowUnlicensed []string `yaml:"allow_unlicensed"`
	Concurrency     int      `yaml:"concurrency"`
}

// HistoryConfig holds the package ledger location. An empty path disables it.
type HistoryConfig struct {
	DBPath string `yaml:"db_path"`
}

// SigningConfig holds optional package signing settings
type SigningConfig struct {
	GPGKey        string `yaml:"gpg_key"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Credentials: CredentialsConfig{
			UserEnv: "BINTRAY_USER",
			KeyEnv:  "BINTRAY_KEY",
		},
		Escrow: EscrowConfig{
			OutputDir:   "build/escrow",
			Compression: string(utils.CompressionGzip),
			Exclude:     []string{".git", ".gradle", "build", ".idea"},
			Concurrency: 4,
		},
		Signing: SigningConfig{
			PassphraseEnv: "ESCROW_GPG_PASSPHRASE",
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"publishkit.yaml",
		"/etc/publishkit/publishkit.yaml",
	}

	// Add user config path
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "publishkit", "publishkit.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if _, err := utils.ParseCompression(c.Escrow.Compression); err != nil {
		return models.NewError(models.ErrInvalidConfig, "escrow.compression", "%w", err)
	}
	if c.Escrow.Concurrency <= 0 {
		return models.NewError(models.ErrInvalidConfig, "escrow.concurrency", "must be positive, got %d", c.Escrow.Concurrency)
	}
	if c.Credentials.UserEnv == "" || c.Credentials.KeyEnv == "" {
		return models.NewError(models.ErrInvalidConfig, "credentials", "user_env and key_env must be set")
	}
	return nil
}

// ResolverConfig builds the resolver input, reading credentials through
// lookup (os.LookupEnv in the CLI)
func (c *Config) ResolverConfig(lookup func(string) (string, bool)) models.ResolverConfig {
	user, _ := lookup(c.Credentials.UserEnv)
	key, _ := lookup(c.Credentials.KeyEnv)

	return models.ResolverConfig{
		Snapshot: c.Repositories.Snapshot,
		Staging:  c.Repositories.Staging,
		Release:  c.Repositories.Release,
		Credentials: models.CredentialSet{
			User: user,
			Key:  key,
		},
		UserSource: c.Credentials.UserEnv,
		KeySource:  c.Credentials.KeyEnv,
	}
}
