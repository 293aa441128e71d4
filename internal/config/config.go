package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	JWTSecret   string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis (asynq broker + rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini
	GeminiAPIKey    string
	GeminiModel     string
	EmbeddingsModel string

	// Retrieval-augmented responder
	RetrievalTopK    int
	HistoryWindow    int
	ResponderTimeout time.Duration

	// Ingestion
	FetchTimeout time.Duration
	MaxFetchSize int64

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Maintenance sweeper
	SweepInterval time.Duration
	PendingTTL    time.Duration

	// Telemetry
	OTLPEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/pdf_chat"),
		DBName:      getEnv("DB_NAME", "pdf_chat"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),

		RetrievalTopK:    getEnvInt("RETRIEVAL_TOP_K", 4),
		HistoryWindow:    getEnvInt("HISTORY_WINDOW", 6),
		ResponderTimeout: getEnvDuration("RESPONDER_TIMEOUT", 60*time.Second),

		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		MaxFetchSize: getEnvInt64("MAX_FETCH_SIZE", 16<<20), // Pro upload cap

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
		PendingTTL:    getEnvDuration("PENDING_TTL", time.Hour),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
