package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr string
	// PipelineURL is the base URL of the external processing pipeline
	// (OCR, categorization, spreadsheet persistence).
	PipelineURL string
	// CallbackBaseURL is the public base URL of this bot, handed to the
	// pipeline so its async verdicts find their way back.
	CallbackBaseURL        string
	PipelineTimeout        time.Duration
	EnableWebhookCallbacks bool

	// Discord Configuration
	DiscordToken     string
	DiscordAppID     string
	DefaultChannelID string

	// LINE Configuration
	LineChannelSecret string
	LineChannelToken  string

	// Redis Configuration
	RedisURL string

	// MinIO Configuration
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSecure    bool

	// DraftTTL sweeps abandoned drafts when > 0; zero disables the sweep.
	DraftTTL time.Duration
}

func Load() Config {
	return Config{
		Addr:                   getenv("BOT_ADDR", ":3000"),
		PipelineURL:            getenv("PIPELINE_URL", "http://localhost:5678"),
		CallbackBaseURL:        getenv("WEBHOOK_BASE_URL", "http://localhost:3000"),
		PipelineTimeout:        time.Duration(getenvInt("PIPELINE_TIMEOUT_SECONDS", 15)) * time.Second,
		EnableWebhookCallbacks: getenvBool("ENABLE_WEBHOOK_CALLBACKS", false),

		DiscordToken:     getenv("DISCORD_TOKEN", ""),
		DiscordAppID:     getenv("DISCORD_APP_ID", ""),
		DefaultChannelID: getenv("DEFAULT_CHANNEL_ID", ""),

		LineChannelSecret: getenv("LINE_CHANNEL_SECRET", ""),
		LineChannelToken:  getenv("LINE_CHANNEL_ACCESS_TOKEN", ""),

		// Redis - empty by default, verdict markers stay in memory if not configured
		RedisURL: getenv("REDIS_URL", ""),

		// MinIO - empty by default, image archive disabled if not configured
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "receipts"),
		MinioSecure:    getenvBool("MINIO_SECURE", false),

		DraftTTL: time.Duration(getenvInt("DRAFT_TTL_SECONDS", 0)) * time.Second,
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
