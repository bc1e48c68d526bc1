package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Stream   StreamConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	RedisURL           string // empty disables the Redis content cache
	JwtSecret          string // empty disables authentication
	UploadDir          string
	UploadMaxBytes     int
	ContentCacheTTL    time.Duration
}

type DatabaseConfig struct {
	Driver     string // "postgres" or "sqlite"
	Connection string
}

type APIKeys struct {
	GoogleGemini       string
	OpenAI             string
	Anthropic          string
	HuggingFace        string
	TurnPersistedTopic string
}

type AIConfig struct {
	GeminiModels      []string
	OpenAIBaseURL     string
	OpenAIModels      []string
	AnthropicModels   []string
	OllamaBaseURL     string
	OllamaModels      []string
	HuggingFaceURL    string
	HuggingFaceModels []string
	EnableDemo        bool
	RetryMax          int
	RetryBaseDelay    time.Duration
}

type StreamConfig struct {
	Buffer            int
	WriteTimeout      time.Duration
	Heartbeat         time.Duration
	GenerationTimeout time.Duration // 0 means no deadline
	SessionTTL        time.Duration
	HistoryCacheTTL   time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			RedisURL:           getEnv("REDIS_URL", ""),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			UploadDir:          getEnv("UPLOAD_DIR", os.TempDir()),
			UploadMaxBytes:     getEnvAsInt("UPLOAD_MAX_BYTES", 10<<20),
			ContentCacheTTL:    getEnvAsDuration("CONTENT_CACHE_TTL", 24*time.Hour),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini:       getEnv("GOOGLE_GEMINI_API_KEY", ""),
			OpenAI:             getEnv("OPENAI_API_KEY", ""),
			Anthropic:          getEnv("ANTHROPIC_API_KEY", ""),
			HuggingFace:        getEnv("HUGGINGFACE_API_KEY", ""),
			TurnPersistedTopic: getEnv("TURN_PERSISTED_TOPIC_NAME", "turn.persisted"),
		},
		Ai: AIConfig{
			GeminiModels:      getEnvAsList("GEMINI_MODELS", "gemini-2.5-flash,gemini-2.5-pro"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
			OpenAIModels:      getEnvAsList("OPENAI_MODELS", "gpt-4o-mini"),
			AnthropicModels:   getEnvAsList("ANTHROPIC_MODELS", "claude-sonnet-4-5"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModels:      getEnvAsList("OLLAMA_MODELS", ""),
			HuggingFaceURL:    getEnv("HUGGINGFACE_BASE_URL", ""),
			HuggingFaceModels: getEnvAsList("HUGGINGFACE_MODELS", ""),
			EnableDemo:        getEnvAsBool("ENABLE_DEMO_MODEL", true),
			RetryMax:          getEnvAsInt("LLM_RETRY_MAX", 3),
			RetryBaseDelay:    getEnvAsDuration("LLM_RETRY_BASE_DELAY", time.Second),
		},
		Stream: StreamConfig{
			Buffer:            getEnvAsInt("STREAM_BUFFER", 64),
			WriteTimeout:      getEnvAsDuration("STREAM_WRITE_TIMEOUT", 30*time.Second),
			Heartbeat:         getEnvAsDuration("STREAM_HEARTBEAT", 15*time.Second),
			GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 0),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", time.Hour),
			HistoryCacheTTL:   getEnvAsDuration("HISTORY_CACHE_TTL", time.Hour),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("30s") or plain seconds ("30").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvAsList(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
