package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration. Everything comes from the
// environment (optionally via a .env file) with defaults that run a
// self-contained installation out of the working directory.
type Config struct {
	ServerPort string
	CORSOrigin string

	AudioDir    string // Directory holding the WAV library that decays in place
	MetadataDir string // Root for the local blob store (decay records, waveform caches)

	SegmentDuration float64 // Decay segment length in seconds
	DegradationRate float64 // Global decay rate multiplier
	LockTimeout     float64 // Segment lock acquisition timeout in seconds

	WatchLibrary bool // Watch AudioDir for new WAVs while running

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// Object store settings. An empty endpoint keeps all state on the
	// local filesystem under MetadataDir.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override variables that are already set.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		AudioDir:    getEnv("AUDIO_DIR", "./audio"),
		MetadataDir: getEnv("METADATA_DIR", "./metadata"),

		SegmentDuration: getEnvFloat("SEGMENT_DURATION", 0.5),
		DegradationRate: getEnvFloat("DEGRADATION_RATE", 1.0),
		LockTimeout:     getEnvFloat("LOCK_TIMEOUT", 5.0),

		WatchLibrary: getEnvBool("WATCH_LIBRARY", true),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", "logs/decayfm.log"),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "decayfm"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}
