package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treesum-io/treesum/constants"
)

func validConfig() *Config {
	cfg := LoadConfig()
	cfg.Provider.APIKey = "sk-test"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateMissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Provider.APIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestValidateTemperatureRange(t *testing.T) {
	cfg := validConfig()
	cfg.Provider.Temperature = 2.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEMPERATURE")
}

func TestValidateGroupSize(t *testing.T) {
	cfg := validConfig()
	cfg.Run.HierarchyGroupSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HIERARCHY_GROUP_SIZE")
}

func TestValidateOverlapSmallerThanChunk(t *testing.T) {
	cfg := validConfig()
	cfg.Chunk.ChunkTokens = 100
	cfg.Chunk.OverlapTokens = 100

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OVERLAP_TOKENS")
}

func TestValidateEncoding(t *testing.T) {
	cfg := validConfig()
	cfg.Chunk.Encoding = constants.Encoding("gpt2")

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_ENCODING")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Provider.APIKey = ""
	cfg.Run.TokensPerMinute = 0
	cfg.Run.QueueConcurrency = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "TOKENS_PER_MINUTE")
	assert.Contains(t, err.Error(), "QUEUE_CONCURRENCY")
}

const validConfigFile = `{
  "provider": {"model": "gpt-4o-mini", "temperature": 0.1},
  "run": {
    "tokens_per_minute": 50000,
    "requests_per_minute": 30,
    "queue_concurrency": 2,
    "queue_interval_ms": 60000,
    "token_budget_window_ms": 60000,
    "token_budget_timeout_ms": 120000,
    "map_output_max_tokens": 400,
    "reduce_output_max_tokens": 600,
    "hierarchy_group_size": 3
  },
  "chunk": {"chunk_tokens": 1500, "overlap_tokens": 50, "encoding": "cl100k"}
}`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "treesum.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFileOverlaysBase(t *testing.T) {
	base := validConfig()
	cfg, err := LoadConfigFile(writeConfigFile(t, validConfigFile), base)
	require.NoError(t, err)

	assert.Equal(t, 50000, cfg.Run.TokensPerMinute)
	assert.Equal(t, 60*time.Second, cfg.Run.QueueInterval)
	assert.Equal(t, 3, cfg.Run.HierarchyGroupSize)
	assert.Equal(t, 1500, cfg.Chunk.ChunkTokens)
	assert.Equal(t, constants.EncodingCL100K, cfg.Chunk.Encoding)
	assert.InDelta(t, 0.1, cfg.Provider.Temperature, 1e-6)

	// Fields absent from the file keep their base values.
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, base.Run.BudgetPollInterval, cfg.Run.BudgetPollInterval)
	assert.Equal(t, base.Run.MaxRetryAttempts, cfg.Run.MaxRetryAttempts)
}

func TestLoadConfigFileRejectsMissingRequired(t *testing.T) {
	content := `{"run": {"tokens_per_minute": 1000}}`
	_, err := LoadConfigFile(writeConfigFile(t, content), validConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestLoadConfigFileRejectsUnknownKeys(t *testing.T) {
	content := `{"run": {"tokens_per_minute": 1000}, "retries": 3}`
	_, err := LoadConfigFile(writeConfigFile(t, content), validConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestLoadConfigFileMissingFile(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.json"), validConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}
