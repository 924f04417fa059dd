package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "azurebridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvAzureOrg, EnvAzureProject, EnvAzureTeam, EnvAzurePAT, EnvAzureBaseURL, EnvDBPath,
		EnvEmbeddingProvider, EnvOpenAIAPIKey, EnvOpenAIBaseURL, EnvHTTPAddr, EnvLogLevel,
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[azure]
org = "contoso"
project = "Apollo"
team = "Apollo Team"
pat = "from-file"
batch_size = 100

[search]
vector_weight = 0.5
full_text_weight = 0.5
cache_ttl = "90s"

[monthly]
stale_after = "10m"

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "contoso", cfg.Azure.Organization)
	assert.Equal(t, "Apollo Team", cfg.Azure.Team)
	assert.Equal(t, 100, cfg.Azure.BatchSize)
	assert.Equal(t, 0.5, cfg.Search.VectorWeight)
	assert.Equal(t, 90*time.Second, cfg.Search.CacheTTL.Std())
	assert.Equal(t, 10*time.Minute, cfg.Monthly.StaleAfter.Std())
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched keys keep their defaults
	assert.Equal(t, 60.0, cfg.Search.RRFK)
	assert.Equal(t, "7.1", cfg.Azure.APIVersion)
	assert.Equal(t, 2*time.Hour, cfg.Monthly.StatusTTL.Std())
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[azure]
org = "contoso"
project = "Apollo"
pat = "from-file"
`)
	t.Setenv(EnvAzurePAT, "from-env")
	t.Setenv(EnvDBPath, "/var/lib/azurebridge/data.db")
	t.Setenv(EnvHTTPAddr, ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Azure.PAT)
	assert.Equal(t, "/var/lib/azurebridge/data.db", cfg.Database.Path)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "contoso", cfg.Azure.Organization)
}

func TestLoad_MissingFiles(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err, "an explicit path must exist")

	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err, "the default path is optional")
	assert.Equal(t, Default(), cfg)
}

func TestLoad_InvalidTOML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "[azure\norg = 1"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[monthly]\nstale_after = \"soon\""))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Azure.Organization = "contoso"
		cfg.Azure.Project = "Apollo"
		cfg.Azure.PAT = "secret"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name       string
		mutate     func(*Config)
		credential bool
		contains   string
	}{
		{"missing pat", func(c *Config) { c.Azure.PAT = "" }, true, EnvAzurePAT},
		{"missing org", func(c *Config) { c.Azure.Organization = "" }, true, "azure.org"},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }, true, EnvOpenAIAPIKey},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "jina" }, false, "jina"},
		{"negative weight", func(c *Config) { c.Search.VectorWeight = -1 }, false, "weights"},
		{"batch too large", func(c *Config) { c.Azure.BatchSize = 500 }, false, "200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.credential, errors.Is(err, ErrMissingCredential))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure.org")
	assert.Contains(t, err.Error(), "azure.project")
	assert.Contains(t, err.Error(), "azure.pat")
}
