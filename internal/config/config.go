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
	Addr       string
	APIURL     string
	CORSOrigin string
	// Remote call budgets
	UploadTimeout time.Duration
	SearchTimeout time.Duration
	ExportTimeout time.Duration
	// Controller timing
	Debounce       time.Duration
	CountdownTicks int
	MaxUploadBytes int64
	// Search backends
	RedisURL       string
	SearchCacheTTL time.Duration
	MeiliURL       string
	MeiliMasterKey string
	// Report archive
	DatabaseURL   string
	MigrationsDir string
	// Export destinations
	ExportDir     string
	MinioEndpoint string
	MinioAccess   string
	MinioSecret   string
	MinioBucket   string
	MinioUseSSL   bool
	// Speech capabilities
	TTSCommand string
	STTCommand string
	LogDir     string
}

// Load reads the environment, honouring a .env file in the working directory.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: could not load .env: %v", err)
	}

	return Config{
		Addr:           getenv("NYAYMITRA_ADDR", ":8787"),
		APIURL:         strings.TrimRight(getenv("NYAYMITRA_API_URL", "http://localhost:8000"), "/"),
		CORSOrigin:     getenv("NYAYMITRA_CORS_ORIGIN", "*"),
		UploadTimeout:  time.Duration(getenvInt("NYAYMITRA_UPLOAD_TIMEOUT_SECONDS", 90)) * time.Second,
		SearchTimeout:  time.Duration(getenvInt("NYAYMITRA_SEARCH_TIMEOUT_SECONDS", 30)) * time.Second,
		ExportTimeout:  time.Duration(getenvInt("NYAYMITRA_EXPORT_TIMEOUT_SECONDS", 45)) * time.Second,
		Debounce:       time.Duration(getenvInt("NYAYMITRA_DEBOUNCE_MS", 1000)) * time.Millisecond,
		CountdownTicks: getenvInt("NYAYMITRA_COUNTDOWN_SECONDS", 20),
		MaxUploadBytes: int64(getenvInt("NYAYMITRA_MAX_UPLOAD_MB", 10)) << 20,
		// Redis and Meilisearch are optional: empty disables them.
		RedisURL:       getenv("REDIS_URL", ""),
		SearchCacheTTL: time.Duration(getenvInt("NYAYMITRA_SEARCH_CACHE_TTL_SECONDS", 600)) * time.Second,
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		MigrationsDir:  getenv("NYAYMITRA_MIGRATIONS_DIR", "./db/migrations"),
		ExportDir:      getenv("NYAYMITRA_EXPORT_DIR", "./exports"),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccess:    getenv("MINIO_ACCESS_KEY", ""),
		MinioSecret:    getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "nyaymitra-reports"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
		TTSCommand:     getenv("NYAYMITRA_TTS_COMMAND", "espeak-ng"),
		STTCommand:     getenv("NYAYMITRA_STT_COMMAND", ""),
		LogDir:         getenv("NYAYMITRA_LOG_DIR", ""),
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
