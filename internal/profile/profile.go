package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Mode mirrors NODE_ENV from the original deployment surface:
	// "production" enables strict signature checks, anything else is dev.
	Mode string
	Addr string
	Port int

	// Data directory and database settings for the course store.
	Data   string
	Driver string
	DSN    string

	// LINE messaging credentials. Both are required in production.
	ChannelAccessToken string
	ChannelSecret      string

	// Conversation context store. Empty RedisURL selects the in-memory backend.
	RedisURL string

	// LLM configuration (OpenAI-compatible protocol).
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	// User-facing timezone for all date/time parsing and display.
	Timezone string

	Version string
}

// IsProduction reports whether the server runs with production guarantees.
func (p *Profile) IsProduction() bool {
	return p.Mode == "production" || p.Mode == "prod"
}

func (p *Profile) IsDev() bool {
	return !p.IsProduction()
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
// Env names keep the deployment surface of the original service
// (NODE_ENV, CHANNEL_ACCESS_TOKEN, ...) so existing setups keep working.
func (p *Profile) FromEnv() {
	if p.Mode == "" {
		p.Mode = getEnvOrDefault("NODE_ENV", "development")
	}
	if p.Port == 0 {
		p.Port = getEnvOrDefaultInt("PORT", 3000)
	}

	p.ChannelAccessToken = getEnvOrDefault("CHANNEL_ACCESS_TOKEN", "")
	p.ChannelSecret = getEnvOrDefault("CHANNEL_SECRET", "")
	p.RedisURL = getEnvOrDefault("REDIS_URL", "")

	p.LLMAPIKey = getEnvOrDefault("OPENAI_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.LLMModel = getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini")

	p.Timezone = getEnvOrDefault("USER_TIMEZONE", "Asia/Taipei")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate checks invariants and fills derived defaults.
func (p *Profile) Validate() error {
	if p.Mode != "production" && p.Mode != "prod" && p.Mode != "development" && p.Mode != "test" {
		p.Mode = "development"
	}

	if p.IsProduction() {
		if p.ChannelAccessToken == "" {
			return errors.New("CHANNEL_ACCESS_TOKEN is required in production")
		}
		if p.ChannelSecret == "" {
			return errors.New("CHANNEL_SECRET is required in production")
		}
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("coursesense_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
