package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Ai       AIConfig
	Rag      RagConfig
	Database DatabaseConfig
	Events   EventsConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string // where the CLI finds the relay
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	MaxUploadBytes     int
}

type AIConfig struct {
	Provider          string // ollama or huggingface
	OllamaHost        string
	HFApiKey          string
	HFBaseURL         string
	DefaultModel      string
	DefaultEmbedModel string
	// GatewayTimeout bounds non-streaming chat calls only. Zero means no
	// deadline.
	GatewayTimeout time.Duration
}

type RagConfig struct {
	Splitter         string // "window" or "recursive"
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	MaxFileBytes     int64
	EmbedConcurrency int
	IndexBackend     string // "memory" or "pgvector"
	QueryCacheTTL    time.Duration
}

type DatabaseConfig struct {
	Connection string
	Verbose    bool
}

type EventsConfig struct {
	Topic   string
	NatsURL string // empty disables NATS
}

type OtelConfig struct {
	Enabled  bool
	Endpoint string
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			BaseURL:            getEnv("BACKEND_URL", "http://localhost:8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/relay.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			MaxUploadBytes:     getEnvAsInt("MAX_UPLOAD_BYTES", 1<<30),
		},
		Ai: AIConfig{
			Provider:          getEnv("LLM_PROVIDER", "ollama"),
			OllamaHost:        getEnv("OLLAMA_HOST", "http://localhost:11434"),
			HFApiKey:          getEnv("HF_API_KEY", ""),
			HFBaseURL:         getEnv("HF_BASE_URL", ""),
			DefaultModel:      getEnv("DEFAULT_MODEL", "llama3.2:latest"),
			DefaultEmbedModel: getEnv("DEFAULT_EMBED_MODEL", "nomic-embed-text:latest"),
			GatewayTimeout:    getEnvAsDuration("GATEWAY_TIMEOUT", 0),
		},
		Rag: RagConfig{
			Splitter:         getEnv("SPLITTER", "window"),
			ChunkSize:        getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:     getEnvAsInt("CHUNK_OVERLAP", 200),
			TopK:             getEnvAsInt("RETRIEVAL_TOP_K", 3),
			MaxFileBytes:     int64(getEnvAsInt("MAX_FILE_BYTES", 200<<20)),
			EmbedConcurrency: getEnvAsInt("EMBED_CONCURRENCY", 4),
			IndexBackend:     getEnv("INDEX_BACKEND", "memory"),
			QueryCacheTTL:    getEnvAsDuration("QUERY_CACHE_TTL", time.Hour),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			Verbose:    getEnv("DB_LOG_QUERIES", "false") == "true",
		},
		Events: EventsConfig{
			Topic:   getEnv("EVENT_TOPIC", "relay.events"),
			NatsURL: getEnv("NATS_URL", ""),
		},
		Otel: OtelConfig{
			Enabled:  getEnv("OTEL_ENABLED", "false") == "true",
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
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

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
