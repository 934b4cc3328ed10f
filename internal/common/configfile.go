package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/treesum-io/treesum/constants"
)

// BuildConfigJSONSchema returns the run-config JSON Schema (draft 2020-12 subset)
// as a generic map. Used to validate config files before any work starts.
func BuildConfigJSONSchema() map[string]any {
	positiveInt := map[string]any{"type": "integer", "exclusiveMinimum": 0}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"run"},
		"properties": map[string]any{
			"provider": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"base_url":    map[string]any{"type": "string"},
					"api_key":     map[string]any{"type": "string"},
					"model":       map[string]any{"type": "string", "minLength": 1},
					"temperature": map[string]any{"type": "number", "minimum": 0.0, "maximum": 2.0},
					"timeout_ms":  positiveInt,
				},
			},
			"run": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required": []string{
					"tokens_per_minute", "requests_per_minute",
					"queue_concurrency", "queue_interval_ms",
					"token_budget_window_ms", "token_budget_timeout_ms",
					"map_output_max_tokens", "reduce_output_max_tokens",
					"hierarchy_group_size",
				},
				"properties": map[string]any{
					"tokens_per_minute":        positiveInt,
					"requests_per_minute":      positiveInt,
					"queue_concurrency":        positiveInt,
					"queue_interval_ms":        positiveInt,
					"token_budget_window_ms":   positiveInt,
					"token_budget_timeout_ms":  positiveInt,
					"budget_poll_interval_ms":  positiveInt,
					"map_output_max_tokens":    positiveInt,
					"reduce_output_max_tokens": positiveInt,
					"hierarchy_group_size":     map[string]any{"type": "integer", "minimum": 1},
					"max_retry_attempts":       map[string]any{"type": "integer", "minimum": 0},
				},
			},
			"chunk": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"chunk_tokens":   positiveInt,
					"overlap_tokens": map[string]any{"type": "integer", "minimum": 0},
					"encoding":       map[string]any{"type": "string", "enum": []string{"o200k", "cl100k"}},
				},
			},
			"store": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"dsn": map[string]any{"type": "string"},
				},
			},
		},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

type fileProvider struct {
	BaseURL     *string  `json:"base_url"`
	APIKey      *string  `json:"api_key"`
	Model       *string  `json:"model"`
	Temperature *float32 `json:"temperature"`
	TimeoutMs   *int     `json:"timeout_ms"`
}

type fileRun struct {
	TokensPerMinute       int  `json:"tokens_per_minute"`
	RequestsPerMinute     int  `json:"requests_per_minute"`
	QueueConcurrency      int  `json:"queue_concurrency"`
	QueueIntervalMs       int  `json:"queue_interval_ms"`
	TokenBudgetWindowMs   int  `json:"token_budget_window_ms"`
	TokenBudgetTimeoutMs  int  `json:"token_budget_timeout_ms"`
	BudgetPollIntervalMs  *int `json:"budget_poll_interval_ms"`
	MapOutputMaxTokens    int  `json:"map_output_max_tokens"`
	ReduceOutputMaxTokens int  `json:"reduce_output_max_tokens"`
	HierarchyGroupSize    int  `json:"hierarchy_group_size"`
	MaxRetryAttempts      *int `json:"max_retry_attempts"`
}

type fileChunk struct {
	ChunkTokens   *int    `json:"chunk_tokens"`
	OverlapTokens *int    `json:"overlap_tokens"`
	Encoding      *string `json:"encoding"`
}

type fileStore struct {
	DSN *string `json:"dsn"`
}

type fileConfig struct {
	Provider *fileProvider `json:"provider"`
	Run      fileRun       `json:"run"`
	Chunk    *fileChunk    `json:"chunk"`
	Store    *fileStore    `json:"store"`
}

// LoadConfigFile reads a JSON config file, validates it against the embedded
// schema, and overlays it on top of the environment-derived config.
func LoadConfigFile(path string, base *Config) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ConfigErrorf("read config file %s: %v", path, err)
	}
	if err := ValidateJSONAgainstSchema(BuildConfigJSONSchema(), raw); err != nil {
		return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("config file %s", path), fmt.Errorf("%w: %w", ErrConfig, err))
	}

	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, ConfigErrorf("decode config file %s: %v", path, err)
	}

	cfg := *base
	if fc.Provider != nil {
		p := fc.Provider
		if p.BaseURL != nil {
			cfg.Provider.BaseURL = *p.BaseURL
		}
		if p.APIKey != nil {
			cfg.Provider.APIKey = *p.APIKey
		}
		if p.Model != nil {
			cfg.Provider.Model = *p.Model
		}
		if p.Temperature != nil {
			cfg.Provider.Temperature = *p.Temperature
		}
		if p.TimeoutMs != nil {
			cfg.Provider.Timeout = time.Duration(*p.TimeoutMs) * time.Millisecond
		}
	}

	r := fc.Run
	cfg.Run.TokensPerMinute = r.TokensPerMinute
	cfg.Run.RequestsPerMinute = r.RequestsPerMinute
	cfg.Run.QueueConcurrency = r.QueueConcurrency
	cfg.Run.QueueInterval = time.Duration(r.QueueIntervalMs) * time.Millisecond
	cfg.Run.TokenBudgetWindow = time.Duration(r.TokenBudgetWindowMs) * time.Millisecond
	cfg.Run.TokenBudgetTimeout = time.Duration(r.TokenBudgetTimeoutMs) * time.Millisecond
	if r.BudgetPollIntervalMs != nil {
		cfg.Run.BudgetPollInterval = time.Duration(*r.BudgetPollIntervalMs) * time.Millisecond
	}
	cfg.Run.MapOutputMaxTokens = r.MapOutputMaxTokens
	cfg.Run.ReduceOutputMaxTokens = r.ReduceOutputMaxTokens
	cfg.Run.HierarchyGroupSize = r.HierarchyGroupSize
	if r.MaxRetryAttempts != nil {
		cfg.Run.MaxRetryAttempts = *r.MaxRetryAttempts
	}

	if fc.Chunk != nil {
		if fc.Chunk.ChunkTokens != nil {
			cfg.Chunk.ChunkTokens = *fc.Chunk.ChunkTokens
		}
		if fc.Chunk.OverlapTokens != nil {
			cfg.Chunk.OverlapTokens = *fc.Chunk.OverlapTokens
		}
		if fc.Chunk.Encoding != nil {
			cfg.Chunk.Encoding = constants.Encoding(*fc.Chunk.Encoding)
		}
	}
	if fc.Store != nil && fc.Store.DSN != nil {
		cfg.Store.DSN = *fc.Store.DSN
	}
	return &cfg, nil
}
