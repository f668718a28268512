package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grader.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	LLMProvider       string
	LLMBackupProvider string
	LLMModel          string
	LLMBackupModel    string
	LLMTemperature    float64
	LLMMaxTokens      int
	LLMTimeout        time.Duration
	LLMRetryAttempts  int
	LLMRetryInitial   time.Duration
	LLMRetryMaxWait   time.Duration
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	AnthropicAPIKey   string
	GeminiAPIKey      string

	StaticCheck    bool
	DetectionCheck bool
	StripComments  bool

	ExamplesRoot        string
	GuidanceCacheTTL    time.Duration
	EvaluationWorkers   int
	EvaluationQueueSize int
	EvaluationTimeout   time.Duration
	RateLimitPerMinute  int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// AuthEnabled reports whether submission routes require a bearer token.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Gema Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.sqlite_path", "grader.db")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.retry_attempts", 3)
	v.SetDefault("llm.retry_initial_wait", "1s")
	v.SetDefault("llm.retry_max_wait", "10s")
	v.SetDefault("security.static_check", true)
	v.SetDefault("security.detection_check", true)
	v.SetDefault("security.strip_comments", true)
	v.SetDefault("examples.root", "examples")
	v.SetDefault("guidance.cache_ttl", "24h")
	v.SetDefault("evaluation.workers", 4)
	v.SetDefault("evaluation.queue_size", 100)
	v.SetDefault("evaluation.timeout", "5m")
	v.SetDefault("evaluation.rate_limit", 10)

	durations := map[string]time.Duration{}
	for _, key := range []string{"llm.timeout", "llm.retry_initial_wait", "llm.retry_max_wait", "guidance.cache_ttl", "evaluation.timeout"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		SQLitePath:          v.GetString("database.sqlite_path"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		LLMProvider:         strings.ToLower(v.GetString("llm.provider")),
		LLMBackupProvider:   strings.ToLower(v.GetString("llm.backup_provider")),
		LLMModel:            v.GetString("llm.model"),
		LLMBackupModel:      v.GetString("llm.backup_model"),
		LLMTemperature:      v.GetFloat64("llm.temperature"),
		LLMMaxTokens:        v.GetInt("llm.max_tokens"),
		LLMTimeout:          durations["llm.timeout"],
		LLMRetryAttempts:    v.GetInt("llm.retry_attempts"),
		LLMRetryInitial:     durations["llm.retry_initial_wait"],
		LLMRetryMaxWait:     durations["llm.retry_max_wait"],
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		OpenAIBaseURL:       v.GetString("openai_base_url"),
		AnthropicAPIKey:     v.GetString("anthropic_api_key"),
		GeminiAPIKey:        v.GetString("gemini_api_key"),
		StaticCheck:         v.GetBool("security.static_check"),
		DetectionCheck:      v.GetBool("security.detection_check"),
		StripComments:       v.GetBool("security.strip_comments"),
		ExamplesRoot:        v.GetString("examples.root"),
		GuidanceCacheTTL:    durations["guidance.cache_ttl"],
		EvaluationWorkers:   v.GetInt("evaluation.workers"),
		EvaluationQueueSize: v.GetInt("evaluation.queue_size"),
		EvaluationTimeout:   durations["evaluation.timeout"],
		RateLimitPerMinute:  v.GetInt("evaluation.rate_limit"),
	}

	if cfg.LLMModel == "" {
		return Config{}, fmt.Errorf("llm model must be provided")
	}

	if cfg.LLMBackupModel == "" {
		cfg.LLMBackupModel = cfg.LLMModel
	}

	if cfg.EvaluationWorkers <= 0 {
		cfg.EvaluationWorkers = 4
	}

	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 10
	}

	return cfg, nil
}
