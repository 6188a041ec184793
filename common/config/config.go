package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Transcode TranscodeConfig
	Thumbnail ThumbnailConfig
	Reaper    ReaperConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds durable blob storage settings
type StorageConfig struct {
	// Root directory for blob payloads; staged uploads live under Root/.staging
	Root string
}

// TranscodeConfig holds media transcoding settings
type TranscodeConfig struct {
	FFmpegPath string
	ScratchDir string
	// PublicBaseURL is the externally reachable base of this service,
	// used to build per-job progress callback URLs handed to ffmpeg.
	PublicBaseURL string
	AudioBitrate  string
	VideoCRF      int
}

// ThumbnailConfig holds thumbnail generation settings
type ThumbnailConfig struct {
	// SnapshotURL renders PDFs and weblinks; ConvertURL handles office formats.
	SnapshotURL string
	ConvertURL  string
	MaxPixels   int
	TicketTTL   time.Duration
}

// ReaperConfig holds deferred-deletion settings
type ReaperConfig struct {
	Interval time.Duration
	Grace    time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "docvault"),
			User:        getEnv("POSTGRES_USER", "docvault"),
			Password:    getEnv("POSTGRES_PASSWORD", "docvault"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Root: getEnv("STORAGE_ROOT", "/var/lib/docvault/blobs"),
		},
		Transcode: TranscodeConfig{
			FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
			ScratchDir:    getEnv("TRANSCODE_SCRATCH_DIR", os.TempDir()),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
			AudioBitrate:  getEnv("TRANSCODE_AUDIO_BITRATE", "128k"),
			VideoCRF:      getEnvInt("TRANSCODE_VIDEO_CRF", 28),
		},
		Thumbnail: ThumbnailConfig{
			SnapshotURL: getEnv("THUMBNAIL_SNAPSHOT_URL", "http://localhost:9100/snapshot"),
			ConvertURL:  getEnv("THUMBNAIL_CONVERT_URL", "http://localhost:9101/convert"),
			MaxPixels:   getEnvInt("THUMBNAIL_MAX_PIXELS", 256),
			TicketTTL:   getEnvDuration("DOWNLOAD_TICKET_TTL", 2*time.Minute),
		},
		Reaper: ReaperConfig{
			Interval: getEnvDuration("REAPER_INTERVAL", 1*time.Hour),
			Grace:    getEnvDuration("REAPER_GRACE", 1*time.Hour),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}

	if c.Reaper.Grace < 0 || c.Reaper.Interval <= 0 {
		return fmt.Errorf("invalid reaper timing: interval=%s grace=%s", c.Reaper.Interval, c.Reaper.Grace)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the host:port address for Redis
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
