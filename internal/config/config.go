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
	Server   ServerConfig
	MongoDB  MongoDBConfig
	Telegram TelegramConfig
	GoFile   GoFileConfig
	Download DownloadConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type TelegramConfig struct {
	BotToken       string
	AdminIDs       []int64
	UpdateTimeout  int
	FileAPITimeout time.Duration
}

type GoFileConfig struct {
	APIBase       string
	DefaultServer string
	AccountToken  string
	MaxRetries    int
	RetryInterval time.Duration
}

type DownloadConfig struct {
	TempDir              string
	ChunkSize            int64
	MaxBytes             int64
	MaxPublishBytes      int64
	FetchTimeout         time.Duration
	UploadTimeout        time.Duration
	ExtractTimeout       time.Duration
	MaxAttempts          int
	RetryBaseDelay       time.Duration
	ProgressInterval     time.Duration
	StagingMaxAge        time.Duration
	SupportedPlatforms   []string
	NonRetryableKeywords []string
	YtDlpBinary          string
	DefaultMaxHeight     int
}

// The original bot's platform table: hosts handled by the extraction
// backend rather than raw byte streaming.
var defaultPlatforms = []string{
	"youtube.com", "youtu.be", "youtube-nocookie.com",
	"instagram.com", "instagr.am",
	"tiktok.com", "vm.tiktok.com",
	"twitter.com", "x.com", "t.co",
	"facebook.com", "fb.watch", "fb.com",
	"reddit.com", "redd.it", "v.redd.it",
	"vimeo.com",
	"dailymotion.com", "dai.ly",
	"soundcloud.com",
	"twitch.tv", "clips.twitch.tv",
	"streamable.com",
	"imgur.com", "i.imgur.com",
	"pinterest.com", "pin.it",
	"tumblr.com",
	"bandcamp.com",
	"mixcloud.com",
	"archive.org",
}

// Phrases that mark a failure as permanent; retrying with identical
// parameters cannot succeed.
var defaultNonRetryable = []string{
	"private", "unavailable", "not found", "removed", "deleted",
	"region", "geo", "country", "blocked", "sign in", "login",
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration (ops API)
	cfg.Server.Port = getEnv("SERVER_PORT", "8080")
	cfg.Server.Host = getEnv("SERVER_HOST", "0.0.0.0")

	// MongoDB configuration
	cfg.MongoDB.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	cfg.MongoDB.Database = getEnv("MONGODB_DATABASE", "telefile")
	mongoTimeout, err := time.ParseDuration(getEnv("MONGODB_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MONGODB_TIMEOUT: %w", err)
	}
	cfg.MongoDB.Timeout = mongoTimeout

	// Telegram configuration
	cfg.Telegram.BotToken = getEnvRequired("BOT_TOKEN")
	cfg.Telegram.AdminIDs, err = parseInt64Slice(getEnvStringSlice("ADMIN_IDS", nil))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}
	cfg.Telegram.UpdateTimeout = getEnvInt("TELEGRAM_UPDATE_TIMEOUT", 30)
	fileTimeout, err := time.ParseDuration(getEnv("TELEGRAM_FILE_TIMEOUT", "120s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_FILE_TIMEOUT: %w", err)
	}
	cfg.Telegram.FileAPITimeout = fileTimeout

	// GoFile configuration
	cfg.GoFile.APIBase = getEnv("GOFILE_API_BASE", "https://api.gofile.io")
	cfg.GoFile.DefaultServer = getEnv("GOFILE_DEFAULT_SERVER", "store1")
	cfg.GoFile.AccountToken = getEnv("GOFILE_API_TOKEN", "")
	cfg.GoFile.MaxRetries = getEnvInt("GOFILE_MAX_RETRIES", 3)
	retryInterval, err := time.ParseDuration(getEnv("GOFILE_RETRY_INTERVAL", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOFILE_RETRY_INTERVAL: %w", err)
	}
	cfg.GoFile.RetryInterval = retryInterval

	// Download pipeline configuration
	cfg.Download.TempDir = getEnv("TEMP_DIR", "./temp")
	cfg.Download.ChunkSize = getEnvInt64("CHUNK_SIZE", 1024*1024)
	cfg.Download.MaxBytes = getEnvInt64("MAX_DOWNLOAD_SIZE", 10*1024*1024*1024)
	cfg.Download.MaxPublishBytes = getEnvInt64("MAX_FILE_SIZE", 4*1024*1024*1024)
	cfg.Download.FetchTimeout = getEnvDuration("DOWNLOAD_TIMEOUT", time.Hour)
	cfg.Download.UploadTimeout = getEnvDuration("UPLOAD_TIMEOUT", 2*time.Hour)
	cfg.Download.ExtractTimeout = getEnvDuration("EXTRACT_TIMEOUT", 2*time.Minute)
	cfg.Download.MaxAttempts = getEnvInt("MAX_RETRIES", 5)
	cfg.Download.RetryBaseDelay = getEnvDuration("RETRY_DELAY", 2*time.Second)
	cfg.Download.ProgressInterval = getEnvDuration("PROGRESS_INTERVAL", 2500*time.Millisecond)
	cfg.Download.StagingMaxAge = getEnvDuration("STAGING_MAX_AGE", 2*time.Hour)
	cfg.Download.SupportedPlatforms = getEnvStringSlice("SUPPORTED_PLATFORMS", defaultPlatforms)
	cfg.Download.NonRetryableKeywords = getEnvStringSlice("RETRY_NONRETRYABLE_KEYWORDS", defaultNonRetryable)
	cfg.Download.YtDlpBinary = getEnv("YTDLP_BINARY", "yt-dlp")
	cfg.Download.DefaultMaxHeight = getEnvInt("DEFAULT_MAX_HEIGHT", 2160)

	if cfg.Download.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if cfg.Download.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE must be positive")
	}

	if err := os.MkdirAll(cfg.Download.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return cfg, nil
}

// IsAdmin reports whether the given Telegram user may run admin commands.
func (c *TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return value
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

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(strings.TrimSpace(value), ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func parseInt64Slice(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
