package common

import (
	"os"
	"strconv"
	"time"

	"github.com/treesum-io/treesum/constants"
)

// Config holds all application configuration
type Config struct {
	Provider ProviderConfig
	Run      RunConfig
	Chunk    ChunkConfig
	Store    StoreConfig
}

// ProviderConfig holds remote model API configuration
type ProviderConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// RunConfig holds the admission/rate parameters for one summarization run
type RunConfig struct {
	TokensPerMinute       int
	RequestsPerMinute     int
	QueueConcurrency      int
	QueueInterval         time.Duration
	TokenBudgetWindow     time.Duration
	TokenBudgetTimeout    time.Duration
	BudgetPollInterval    time.Duration
	MapOutputMaxTokens    int
	ReduceOutputMaxTokens int
	HierarchyGroupSize    int
	MaxRetryAttempts      int
}

// ChunkConfig holds segmentation configuration
type ChunkConfig struct {
	ChunkTokens   int
	OverlapTokens int
	Encoding      constants.Encoding
}

// StoreConfig holds the optional run-artifact store configuration
type StoreConfig struct {
	DSN string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat32("TEMPERATURE", 0.2),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
		},
		Run: RunConfig{
			TokensPerMinute:       getEnvAsInt("TOKENS_PER_MINUTE", 100000),
			RequestsPerMinute:     getEnvAsInt("REQUESTS_PER_MINUTE", 60),
			QueueConcurrency:      getEnvAsInt("QUEUE_CONCURRENCY", 4),
			QueueInterval:         getEnvAsMillis("QUEUE_INTERVAL_MS", time.Minute),
			TokenBudgetWindow:     getEnvAsMillis("TOKEN_BUDGET_WINDOW_MS", time.Minute),
			TokenBudgetTimeout:    getEnvAsMillis("TOKEN_BUDGET_TIMEOUT_MS", 5*time.Minute),
			BudgetPollInterval:    getEnvAsMillis("BUDGET_POLL_INTERVAL_MS", constants.DefaultBudgetPollInterval),
			MapOutputMaxTokens:    getEnvAsInt("MAP_OUTPUT_MAX_TOKENS", 500),
			ReduceOutputMaxTokens: getEnvAsInt("REDUCE_OUTPUT_MAX_TOKENS", 800),
			HierarchyGroupSize:    getEnvAsInt("HIERARCHY_GROUP_SIZE", 4),
			MaxRetryAttempts:      getEnvAsInt("MAX_RETRY_ATTEMPTS", constants.DefaultMaxRetryAttempts),
		},
		Chunk: ChunkConfig{
			ChunkTokens:   getEnvAsInt("CHUNK_TOKENS", 2000),
			OverlapTokens: getEnvAsInt("OVERLAP_TOKENS", 100),
			Encoding:      constants.Encoding(getEnv("TOKEN_ENCODING", string(constants.EncodingO200K))),
		},
		Store: StoreConfig{
			DSN: getEnv("STORE_DSN", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate surfaces every configuration problem before a run starts.
// A run never begins with a missing or out-of-range parameter.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("OPENAI_API_KEY", c.Provider.APIKey, Required)
	v.Field("OPENAI_MODEL", c.Provider.Model, Required)
	v.Field("TEMPERATURE", c.Provider.Temperature, InRange(0, 2))
	v.Field("TOKENS_PER_MINUTE", c.Run.TokensPerMinute, Positive)
	v.Field("REQUESTS_PER_MINUTE", c.Run.RequestsPerMinute, Positive)
	v.Field("QUEUE_CONCURRENCY", c.Run.QueueConcurrency, Positive)
	v.Field("QUEUE_INTERVAL_MS", int64(c.Run.QueueInterval/time.Millisecond), Positive)
	v.Field("TOKEN_BUDGET_WINDOW_MS", int64(c.Run.TokenBudgetWindow/time.Millisecond), Positive)
	v.Field("TOKEN_BUDGET_TIMEOUT_MS", int64(c.Run.TokenBudgetTimeout/time.Millisecond), Positive)
	v.Field("BUDGET_POLL_INTERVAL_MS", int64(c.Run.BudgetPollInterval/time.Millisecond), Positive)
	v.Field("MAP_OUTPUT_MAX_TOKENS", c.Run.MapOutputMaxTokens, Positive)
	v.Field("REDUCE_OUTPUT_MAX_TOKENS", c.Run.ReduceOutputMaxTokens, Positive)
	v.Field("HIERARCHY_GROUP_SIZE", c.Run.HierarchyGroupSize, AtLeast(1))
	v.Field("MAX_RETRY_ATTEMPTS", c.Run.MaxRetryAttempts, AtLeast(0))
	v.Field("CHUNK_TOKENS", c.Chunk.ChunkTokens, Positive)
	v.Field("OVERLAP_TOKENS", c.Chunk.OverlapTokens, AtLeast(0))
	if !constants.ValidEncoding(c.Chunk.Encoding) {
		v.Field("TOKEN_ENCODING", string(c.Chunk.Encoding), func(f string, val interface{}) *ValidationError {
			return &ValidationError{Field: f, Value: val, Message: "must be one of: o200k, cl100k"}
		})
	}
	if c.Chunk.OverlapTokens >= c.Chunk.ChunkTokens {
		v.Field("OVERLAP_TOKENS", c.Chunk.OverlapTokens, func(f string, val interface{}) *ValidationError {
			return &ValidationError{Field: f, Value: val, Message: "must be smaller than CHUNK_TOKENS"}
		})
	}
	return v.Error()
}
