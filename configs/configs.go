// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// Mode is "production" or "development". Production logs JSON.
	Mode     string
	LogLevel string

	// ServerPort is the HTTP listen port.
	ServerPort string

	// CORSOrigins are the frontend origins allowed to call the API.
	CORSOrigins []string

	// Timezone names the zone that calendar days and order numbers use.
	Timezone string

	Storage StorageConfig
	JWT     JWTConfig
	Limit   RateLimitConfig

	// KafkaEvents is optional; with no broker, events are dropped.
	KafkaEvents KafkaConfig

	// StageFees is the fallback "kind=fee,..." table used when the trades
	// settings document has no entry for a kind.
	StageFees string
}

// StorageConfig selects and addresses the document store.
type StorageConfig struct {
	// Driver is "mongo" or "memory".
	Driver string

	MongoURI string
	Database string

	// ConnectTimeout bounds one connection attempt.
	ConnectTimeout time.Duration

	// ConnectAttempts is how many times startup tries to reach the store.
	ConnectAttempts int
}

// JWTConfig verifies bearer tokens issued for operators.
type JWTConfig struct {
	SecretKey string
	Algorithm string
}

// RateLimitConfig is the per-operator request budget.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// KafkaConfig holds Kafka connection settings for trade events.
type KafkaConfig struct {
	// Broker is the Kafka broker address (e.g., "localhost:9092").
	Broker string

	// Topic is the Kafka topic for trade lifecycle events.
	Topic string
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	return &AppConfig{
		Mode:        getEnv("MODE", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		CORSOrigins: getEnvList("CORS_ORIGIN"),
		Timezone:    getEnv("TIMEZONE", "Asia/Taipei"),
		Storage: StorageConfig{
			Driver:          getEnv("STORAGE_DRIVER", "mongo"),
			MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:        getEnv("MONGO_DB", "tradedesk"),
			ConnectTimeout:  getEnvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
			ConnectAttempts: getEnvInt("MONGO_CONNECT_ATTEMPTS", 5),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
			Algorithm: getEnv("JWT_ALGORITHM", "HS256"),
		},
		Limit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
			Burst: getEnvInt("RATE_LIMIT_BURST", 40),
		},
		KafkaEvents: KafkaConfig{
			Broker: getEnv("KAFKA_BROKER", ""),
			Topic:  getEnv("KAFKA_TRADE_EVENTS_TOPIC", "tradedesk_trade_events"),
		},
		StageFees: getEnv("STAGE_FEES", ""),
	}
}

// Location resolves Timezone, falling back to the process zone.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// NewLogger builds the process logger: full-timestamp text in development,
// JSON in production.
func (c *AppConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.Mode == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return logger
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go durations ("10s") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, s := range strings.Split(getEnv(key, ""), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
