package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the engine
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	CORS        CORSConfig
	Calculation CalculationConfig
	Publisher   PublisherConfig
	Snapshot    SnapshotConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// CalculationConfig holds the knobs of the analytics stages.
type CalculationConfig struct {
	// Version tags every derived artifact; recomputing under a new
	// version never overwrites results produced under an old one.
	Version        string
	BaseCurrency   string
	PeriodsPerYear float64
	VaRWindow      int
	RiskFreeRate   float64
	// Workers bounds how many accounts are recomputed in parallel.
	Workers int
}

// PublisherConfig holds the update publisher queue settings.
type PublisherConfig struct {
	QueueSize        int
	DrawdownAlertPct float64
}

// SnapshotConfig holds the nightly snapshot schedule.
type SnapshotConfig struct {
	CronSpec string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/engine.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost",
			},
		},
		Calculation: CalculationConfig{
			Version:        getEnv("CALC_VERSION", "v1"),
			BaseCurrency:   getEnv("BASE_CURRENCY", "USD"),
			PeriodsPerYear: getEnvFloat("PERIODS_PER_YEAR", 252),
			VaRWindow:      getEnvInt("VAR_WINDOW", 252),
			RiskFreeRate:   getEnvFloat("RISK_FREE_RATE", 0),
			Workers:        getEnvInt("CALC_WORKERS", 4),
		},
		Publisher: PublisherConfig{
			QueueSize:        getEnvInt("PUBLISH_QUEUE_SIZE", 256),
			DrawdownAlertPct: getEnvFloat("DRAWDOWN_ALERT_PCT", 0.20),
		},
		Snapshot: SnapshotConfig{
			CronSpec: getEnv("SNAPSHOT_CRON", "0 1 * * *"),
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
