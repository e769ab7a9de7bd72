package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort      string
	MongoURI        string
	MongoDatabase   string
	SessionSecret   string
	SessionDuration time.Duration

	StudyConfigPath string
	ApprovedIDsPath string
	RosterPath      string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	ChatModel     string
	SummaryModel  string

	SESRegion       string
	SESFromEmail    string
	SESFromName     string
	ResearcherEmail string

	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is honored when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	return &Config{
		ServerPort:      getEnv("PORT", "8080"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "pls"),
		SessionSecret:   getEnv("SESSION_SECRET", ""),
		SessionDuration: getDuration("SESSION_DURATION", 24*time.Hour),

		StudyConfigPath: getEnv("STUDY_CONFIG_PATH", ""),
		ApprovedIDsPath: getEnv("APPROVED_IDS_PATH", "./approved_ids.csv"),
		RosterPath:      getEnv("ROSTER_PATH", "./roster.csv"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:     getEnv("CHAT_MODEL", "gpt-4o"),
		SummaryModel:  getEnv("SUMMARY_MODEL", "gpt-4o"),

		SESRegion:       getEnv("SES_REGION", "us-east-1"),
		SESFromEmail:    getEnv("SES_FROM_EMAIL", ""),
		SESFromName:     getEnv("SES_FROM_NAME", "PLS Study"),
		ResearcherEmail: getEnv("RESEARCHER_EMAIL", ""),

		LoginRateLimit:  getInt("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: getDuration("LOGIN_RATE_WINDOW", time.Minute),
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Warning: invalid value for %s, using default %s", key, defaultValue)
	}
	return defaultValue
}
