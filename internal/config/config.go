package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string

	OpenAIAPIKey   string
	ChatModel      string
	EmbeddingModel string
	LLMMaxTokens   int
	LLMTemperature float32

	// External-service call policy.
	LLMRequestsPerSecond float64
	LLMBurst             int
	LLMMaxRetries        int
	LLMRetryBaseDelay    time.Duration

	// Grading knobs.
	ConfidenceThreshold  float64
	BorderlineLow        float64
	BorderlineHigh       float64
	NumericTolerance     float64
	MinFragmentLength    int
	TaskStaleness        time.Duration
	WorkerConcurrency    int
	AutoTriggerThreshold int

	// Classifier weights over (lexical, embedding, structure).
	LexicalWeight   float64
	EmbeddingWeight float64
	StructureWeight float64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADEWISE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Gradewise API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("chat.model", "gpt-4o-mini")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.burst", 4)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_base_delay", "500ms")
	v.SetDefault("grading.confidence_threshold", 0.6)
	v.SetDefault("grading.borderline_low", 0.4)
	v.SetDefault("grading.borderline_high", 0.6)
	v.SetDefault("grading.numeric_tolerance", 0.05)
	v.SetDefault("grading.min_fragment_length", 20)
	v.SetDefault("grading.task_staleness", "30m")
	v.SetDefault("grading.worker_concurrency", 4)
	v.SetDefault("grading.auto_trigger_threshold", 1)
	v.SetDefault("grading.lexical_weight", 0.25)
	v.SetDefault("grading.embedding_weight", 0.45)
	v.SetDefault("grading.structure_weight", 0.30)

	staleness, err := time.ParseDuration(v.GetString("grading.task_staleness"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid task staleness: %w", err)
	}

	retryDelay, err := time.ParseDuration(v.GetString("llm.retry_base_delay"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid llm retry base delay: %w", err)
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		OpenAIAPIKey:         v.GetString("openai_api_key"),
		ChatModel:            v.GetString("chat.model"),
		EmbeddingModel:       v.GetString("embedding.model"),
		LLMMaxTokens:         v.GetInt("llm.max_tokens"),
		LLMTemperature:       float32(v.GetFloat64("llm.temperature")),
		LLMRequestsPerSecond: v.GetFloat64("llm.requests_per_second"),
		LLMBurst:             v.GetInt("llm.burst"),
		LLMMaxRetries:        v.GetInt("llm.max_retries"),
		LLMRetryBaseDelay:    retryDelay,
		ConfidenceThreshold:  v.GetFloat64("grading.confidence_threshold"),
		BorderlineLow:        v.GetFloat64("grading.borderline_low"),
		BorderlineHigh:       v.GetFloat64("grading.borderline_high"),
		NumericTolerance:     v.GetFloat64("grading.numeric_tolerance"),
		MinFragmentLength:    v.GetInt("grading.min_fragment_length"),
		TaskStaleness:        staleness,
		WorkerConcurrency:    v.GetInt("grading.worker_concurrency"),
		AutoTriggerThreshold: v.GetInt("grading.auto_trigger_threshold"),
		LexicalWeight:        v.GetFloat64("grading.lexical_weight"),
		EmbeddingWeight:      v.GetFloat64("grading.embedding_weight"),
		StructureWeight:      v.GetFloat64("grading.structure_weight"),
	}

	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 4
	}

	if cfg.AutoTriggerThreshold <= 0 {
		cfg.AutoTriggerThreshold = 1
	}

	if cfg.LLMBurst <= 0 {
		cfg.LLMBurst = 1
	}

	return cfg, nil
}
