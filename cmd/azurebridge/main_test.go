package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Azure.Organization = "contoso"
	cfg.Azure.Project = "Apollo"
	cfg.Azure.Team = "Apollo Team"
	cfg.Azure.PAT = "secret"
	return cfg
}

func TestConfigConversions(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.RevisionBatchSize = 50
	cfg.Search.MinScore = 0.005

	d := devopsConfig(cfg)
	assert.Equal(t, "contoso", d.Organization)
	assert.Equal(t, "Apollo Team", d.Team)
	assert.Equal(t, 50, d.RevisionPageSize)
	assert.Equal(t, azureTimeout, d.Timeout)

	s := syncOptions(cfg)
	assert.Equal(t, "Apollo", s.Project)
	assert.Equal(t, 200, s.BatchSize)
	assert.Equal(t, 3, s.Retry.MaxAttempts)
	assert.Equal(t, time.Second, s.Retry.Delay(1))
	assert.Equal(t, 2*time.Second, s.Retry.Delay(2))
	assert.True(t, s.Retry.Retryable(&retryableErr{}))
	assert.False(t, s.Retry.Retryable(context.Canceled))

	o := searchOptions(cfg)
	assert.Equal(t, 0.7, o.Weights.VectorWeight)
	assert.Equal(t, 0.3, o.Weights.FullTextWeight)
	assert.Equal(t, 60.0, o.Weights.RRFK)
	assert.Equal(t, 0.005, o.MinScore)
	assert.Equal(t, 5*time.Minute, o.CacheTTL)

	e := embedderConfig(cfg)
	assert.Equal(t, "local", e.Provider)
	assert.Equal(t, 10000, e.CacheSize)
}

// retryableErr reports itself as transient
type retryableErr struct{}

func (*retryableErr) Error() string   { return "busy" }
func (*retryableErr) Transient() bool { return true }

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()

	for _, path := range [][]string{
		{"serve"}, {"mcp"}, {"sync", "full"}, {"sync", "incremental"}, {"sync", "item"},
		{"sync", "iteration"}, {"backfill", "effort"}, {"migrate"}, {"version"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version: dev")
	assert.Contains(t, out.String(), "SQLite Driver:")
}

func TestMigrateCommand(t *testing.T) {
	t.Setenv(config.EnvDBPath, "")
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "azurebridge.db")
	cfgPath := filepath.Join(dir, "azurebridge.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[database]\npath = \""+filepath.ToSlash(dbPath)+"\"\n"), 0o600))

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--config", cfgPath})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, filepath.ToSlash(dbPath), got["database"])
	assert.NotEmpty(t, got["schemaVersion"])
	assert.FileExists(t, dbPath)
}

func TestSyncCommand_RequiresCredentials(t *testing.T) {
	for _, key := range []string{config.EnvAzureOrg, config.EnvAzureProject, config.EnvAzurePAT} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())

	root := newRootCommand()
	root.SetArgs([]string{"sync", "full"})
	err := root.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
}

func TestSyncItem_RequiresOneArgument(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"sync", "item"})
	assert.Error(t, root.Execute())
}
