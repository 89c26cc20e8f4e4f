// Package config handles loading and managing Blockscope configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blockscope/blockscope/pkg/provider"
	"github.com/blockscope/blockscope/pkg/scoring"
)

// Config is the top-level configuration for Blockscope.
type Config struct {
	Provider   ProviderConfig     `yaml:"provider"`
	Engine     EngineConfig       `yaml:"engine"`
	Thresholds scoring.Thresholds `yaml:"thresholds"`
	Scan       ScanConfig         `yaml:"scan"`
	Storage    StorageConfig      `yaml:"storage"`
	History    HistoryConfig      `yaml:"history"`
	Server     ServerConfig       `yaml:"server"`
}

// ProviderConfig selects the analysis model.
type ProviderConfig struct {
	Kind      string `yaml:"kind"` // ollama, openai, openrouter, groq, custom
	Model     string `yaml:"model"`
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"` // name of the env var holding the key
	Timeout   int    `yaml:"timeout"`     // seconds per analysis call
}

// EngineConfig controls the worker pool.
type EngineConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// ScanConfig controls tree building.
type ScanConfig struct {
	Languages      []string `yaml:"languages"` // empty means every supported language
	MaxSourceLines int      `yaml:"max_source_lines"`
}

// StorageConfig selects where the analysis cache is persisted.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // local, s3, gcs
	Path     string `yaml:"path"`    // local directory; defaults to CacheDir
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // S3-compatible endpoint (MinIO, R2)
	Prefix   string `yaml:"prefix"`
}

// HistoryConfig enables the Postgres run history when DatabaseURL is set.
type HistoryConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// ServerConfig controls the local interactive server.
type ServerConfig struct {
	Port        int `yaml:"port"`         // 0 picks a free port
	IdleTimeout int `yaml:"idle_timeout"` // seconds; 0 disables idle shutdown
}

var (
	providerKinds  = []string{"ollama", "openai", "openrouter", "groq", "custom"}
	storageKinds   = []string{"local", "s3", "gcs"}
	defaultAPIKeys = map[string]string{
		"openai":     "OPENAI_API_KEY",
		"openrouter": "OPENROUTER_API_KEY",
		"groq":       "GROQ_API_KEY",
		"custom":     "BLOCKSCOPE_API_KEY",
	}
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Kind:    "ollama",
			Model:   "qwen3:8b",
			Timeout: 60,
		},
		Engine: EngineConfig{
			Workers:   1,
			QueueSize: 256,
		},
		Thresholds: scoring.DefaultThresholds(),
		Scan: ScanConfig{
			MaxSourceLines: provider.DefaultMaxSourceLines,
		},
		Storage: StorageConfig{
			Backend: "local",
			Prefix:  "blockscope",
		},
		Server: ServerConfig{
			IdleTimeout: 300,
		},
	}
}

// Load reads a config file from the given path.
// If the file does not exist, it returns the default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the engine cannot run with. Invalid values are
// never silently replaced by defaults.
func (c *Config) Validate() error {
	if !slices.Contains(providerKinds, c.Provider.Kind) {
		return fmt.Errorf("provider.kind: unknown provider %q", c.Provider.Kind)
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model: must be set")
	}
	if c.Provider.Kind == "custom" && c.Provider.Endpoint == "" {
		return fmt.Errorf("provider.endpoint: required for custom provider")
	}
	if c.Provider.Timeout < 1 {
		return fmt.Errorf("provider.timeout: must be at least 1 second, got %d", c.Provider.Timeout)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers: must be at least 1, got %d", c.Engine.Workers)
	}
	if c.Engine.QueueSize < 1 {
		return fmt.Errorf("engine.queue_size: must be at least 1, got %d", c.Engine.QueueSize)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if !slices.Contains(storageKinds, c.Storage.Backend) {
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	if (c.Storage.Backend == "s3" || c.Storage.Backend == "gcs") && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket: required for %s backend", c.Storage.Backend)
	}
	return nil
}

// CallTimeout is the per-analysis provider timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Provider.Timeout) * time.Second
}

// ProviderKey is the configuration key of the configured provider. It
// matches Key() of the provider NewProvider returns.
func (c *Config) ProviderKey() string {
	return c.Provider.Kind + "/" + c.Provider.Model
}

// NewProvider builds the configured analysis provider. API keys are read
// from the environment variable named by api_key_env, falling back to the
// provider's conventional variable.
func (c *Config) NewProvider() (provider.Provider, error) {
	p := c.Provider
	if p.Kind == "ollama" {
		return provider.NewOllama(p.Endpoint, p.Model, c.Scan.MaxSourceLines), nil
	}

	keyEnv := p.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeys[p.Kind]
	}
	key := provider.NewSecret(os.Getenv(keyEnv))
	if key.Empty() && p.Kind != "custom" {
		return nil, fmt.Errorf("provider %s: API key not set (export %s)", p.Kind, keyEnv)
	}
	return provider.NewOpenAICompatible(p.Kind, p.Endpoint, p.Model, key, c.Scan.MaxSourceLines)
}

// FindConfigFile looks for .blockscope/config.yaml in the given directory
// and its parents, returning the path if found, or "" if not.
func FindConfigFile(dir string) string {
	for {
		candidate := filepath.Join(dir, ".blockscope", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// CacheDir returns the cache directory for a given project path.
// Uses ~/.cache/blockscope/<repo-slug>/ to avoid polluting the repo.
func CacheDir(projectPath string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".cache", "blockscope", RepoSlug(projectPath))
}

// RepoSlug creates a filesystem-safe identifier from a project path.
// Uses the last two path components (e.g., "user_myrepo" from "/home/user/myrepo").
func RepoSlug(projectPath string) string {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		abs = projectPath
	}
	dir := filepath.Base(filepath.Dir(abs))
	base := filepath.Base(abs)
	return dir + "_" + base
}
