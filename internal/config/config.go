package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings, loaded from the environment.
type Config struct {
	Gemini   GeminiConfig
	BigQuery BigQueryConfig
	Storage  StorageConfig
	Extract  ExtractConfig
	Agent    AgentConfig
	Logger   LoggerConfig
}

type GeminiConfig struct {
	// TextModel handles free-text and transcript parsing.
	TextModel string
	// VisionModel handles receipt images and PDFs.
	VisionModel string
	Timeout     time.Duration
}

type BigQueryConfig struct {
	ProjectID string
	DatasetID string
}

type StorageConfig struct {
	// ReceiptBucket is the GCS bucket where original receipt files are archived.
	ReceiptBucket string
}

type ExtractConfig struct {
	// MaxFileSizeMB bounds receipt uploads before any model call is made.
	MaxFileSizeMB int
	// ReceiptMaxAgeDays bounds how far back a receipt date may lie.
	ReceiptMaxAgeDays int
	// TextMaxAgeDays bounds dates mentioned in free-text and voice entries.
	TextMaxAgeDays int
}

type AgentConfig struct {
	Model string
	// HistoryTTL is how long an idle conversation keeps its context.
	HistoryTTL time.Duration
	// HistoryDepth is the number of past turns replayed into the model.
	HistoryDepth int
}

type LoggerConfig struct {
	Level string
}

// Load reads configuration from a .env file if present, then from the
// environment. Every value has a default so local runs work out of the box.
func Load() (*Config, error) {
	// .env is optional; environment variables win either way.
	for _, envFile := range []string{".env", "../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	geminiTimeout, _ := strconv.Atoi(getEnv("GEMINI_TIMEOUT_SECONDS", "30"))
	maxFileSize, _ := strconv.Atoi(getEnv("MAX_FILE_SIZE_MB", "20"))
	receiptMaxAge, _ := strconv.Atoi(getEnv("RECEIPT_MAX_AGE_DAYS", "30"))
	textMaxAge, _ := strconv.Atoi(getEnv("TEXT_MAX_AGE_DAYS", "365"))
	historyTTL, _ := strconv.Atoi(getEnv("AGENT_HISTORY_TTL_MINUTES", "60"))
	historyDepth, _ := strconv.Atoi(getEnv("AGENT_HISTORY_DEPTH", "20"))

	return &Config{
		Gemini: GeminiConfig{
			TextModel:   getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
			VisionModel: getEnv("GEMINI_VISION_MODEL", "gemini-2.5-flash"),
			Timeout:     time.Duration(geminiTimeout) * time.Second,
		},
		BigQuery: BigQueryConfig{
			ProjectID: getEnv("BQ_PROJECT_ID", ""),
			DatasetID: getEnv("BQ_DATASET_ID", "finance"),
		},
		Storage: StorageConfig{
			ReceiptBucket: getEnv("GCS_RECEIPT_BUCKET", ""),
		},
		Extract: ExtractConfig{
			MaxFileSizeMB:     maxFileSize,
			ReceiptMaxAgeDays: receiptMaxAge,
			TextMaxAgeDays:    textMaxAge,
		},
		Agent: AgentConfig{
			Model:        getEnv("AGENT_MODEL", "gemini-2.5-flash"),
			HistoryTTL:   time.Duration(historyTTL) * time.Minute,
			HistoryDepth: historyDepth,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
