// Package config loads AzureBridge settings from a TOML file overlaid by
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is read when no --config flag is given; it may be absent
const DefaultPath = "azurebridge.toml"

// ErrMissingCredential marks configuration that must be present at startup
var ErrMissingCredential = errors.New("missing required configuration")

// Environment overrides
const (
	EnvAzureOrg          = "AZURE_DEVOPS_ORG"
	EnvAzureProject      = "AZURE_DEVOPS_PROJECT"
	EnvAzureTeam         = "AZURE_DEVOPS_TEAM"
	EnvAzurePAT          = "AZURE_DEVOPS_PAT"
	EnvAzureBaseURL      = "AZURE_DEVOPS_BASE_URL"
	EnvDBPath            = "AZUREBRIDGE_DB_PATH"
	EnvEmbeddingProvider = "AZUREBRIDGE_EMBEDDING_PROVIDER"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvOpenAIBaseURL     = "OPENAI_BASE_URL"
	EnvHTTPAddr          = "AZUREBRIDGE_HTTP_ADDR"
	EnvLogLevel          = "AZUREBRIDGE_LOG_LEVEL"
)

// Duration is a time.Duration written as "30s" or "5m" in TOML
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type AzureConfig struct {
	Organization      string  `toml:"org"`
	Project           string  `toml:"project"`
	Team              string  `toml:"team"`
	PAT               string  `toml:"pat"`
	BaseURL           string  `toml:"base_url"`
	APIVersion        string  `toml:"api_version"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	BatchSize         int     `toml:"batch_size"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type EmbeddingConfig struct {
	Provider  string `toml:"provider"` // openai or local
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Dimension int    `toml:"dimension"`
	BatchSize int    `toml:"batch_size"`
	CacheSize int    `toml:"cache_size"`
}

type SearchConfig struct {
	TopK           int      `toml:"top_k"`
	VectorWeight   float64  `toml:"vector_weight"`
	FullTextWeight float64  `toml:"full_text_weight"`
	RRFK           float64  `toml:"rrf_k"`
	MinScore       float64  `toml:"min_score"`
	CacheSize      int      `toml:"cache_size"`
	CacheTTL       Duration `toml:"cache_ttl"`
}

type SyncConfig struct {
	RetryAttempts     int      `toml:"retry_attempts"`
	RetryBaseDelay    Duration `toml:"retry_base_delay"`
	RetryMaxDelay     Duration `toml:"retry_max_delay"`
	RevisionBatchSize int      `toml:"revision_batch_size"`
}

type MonthlyConfig struct {
	StaleAfter Duration `toml:"stale_after"`
	StatusTTL  Duration `toml:"status_ttl"`
}

type HTTPConfig struct {
	Addr           string   `toml:"addr"`
	RateLimit      float64  `toml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst      int      `toml:"rate_burst"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Config is the complete application configuration
type Config struct {
	Azure     AzureConfig     `toml:"azure"`
	Database  DatabaseConfig  `toml:"database"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Search    SearchConfig    `toml:"search"`
	Sync      SyncConfig      `toml:"sync"`
	Monthly   MonthlyConfig   `toml:"monthly"`
	HTTP      HTTPConfig      `toml:"http"`
	Log       LogConfig       `toml:"log"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Azure: AzureConfig{
			BaseURL:           "https://dev.azure.com",
			APIVersion:        "7.1",
			RequestsPerSecond: 10,
			Burst:             20,
			BatchSize:         200,
		},
		Database: DatabaseConfig{Path: "azurebridge.db"},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			BatchSize: 20,
			CacheSize: 10000,
		},
		Search: SearchConfig{
			TopK:           10,
			VectorWeight:   0.7,
			FullTextWeight: 0.3,
			RRFK:           60,
			CacheSize:      1000,
			CacheTTL:       Duration(5 * time.Minute),
		},
		Sync: SyncConfig{
			RetryAttempts:     3,
			RetryBaseDelay:    Duration(time.Second),
			RetryMaxDelay:     Duration(30 * time.Second),
			RevisionBatchSize: 200,
		},
		Monthly: MonthlyConfig{
			StaleAfter: Duration(30 * time.Minute),
			StatusTTL:  Duration(2 * time.Hour),
		},
		HTTP: HTTPConfig{
			Addr:      ":8080",
			RateLimit: 20,
			RateBurst: 40,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path reads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Azure.Organization, EnvAzureOrg)
	set(&c.Azure.Project, EnvAzureProject)
	set(&c.Azure.Team, EnvAzureTeam)
	set(&c.Azure.PAT, EnvAzurePAT)
	set(&c.Azure.BaseURL, EnvAzureBaseURL)
	set(&c.Database.Path, EnvDBPath)
	set(&c.Embedding.Provider, EnvEmbeddingProvider)
	set(&c.Embedding.APIKey, EnvOpenAIAPIKey)
	set(&c.Embedding.BaseURL, EnvOpenAIBaseURL)
	set(&c.HTTP.Addr, EnvHTTPAddr)
	set(&c.Log.Level, EnvLogLevel)
}

// Validate reports missing credentials and out of range values. Every
// problem is listed, not only the first.
func (c *Config) Validate() error {
	var errs []error
	missing := func(name, env string) {
		errs = append(errs, fmt.Errorf("%w: %s (or %s)", ErrMissingCredential, name, env))
	}

	if c.Azure.Organization == "" {
		missing("azure.org", EnvAzureOrg)
	}
	if c.Azure.Project == "" {
		missing("azure.project", EnvAzureProject)
	}
	if c.Azure.PAT == "" {
		missing("azure.pat", EnvAzurePAT)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "openai":
		if c.Embedding.APIKey == "" {
			missing("embedding.api_key", EnvOpenAIAPIKey)
		}
	case "local", "":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if c.Search.VectorWeight < 0 || c.Search.FullTextWeight < 0 {
		errs = append(errs, errors.New("search weights must not be negative"))
	}
	if c.Search.RRFK < 0 {
		errs = append(errs, errors.New("search.rrf_k must not be negative"))
	}
	if c.Azure.BatchSize > 200 {
		errs = append(errs, fmt.Errorf("azure.batch_size %d exceeds the API limit of 200", c.Azure.BatchSize))
	}

	return errors.Join(errs...)
}
