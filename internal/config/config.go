// Package config loads the service configuration from an optional YAML file
// and SHARE_* environment variables, and validates it at startup.
package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Redis  RedisConfig  `yaml:"redis"`
	Blob   BlobConfig   `yaml:"blob"`
	S3     S3Config     `yaml:"s3"`
	Share  ShareConfig  `yaml:"share"`
	Reaper ReaperConfig `yaml:"reaper"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"SHARE_ADDR" env-default:":5000"`
	BasePath        string        `yaml:"base-path" env:"SHARE_BASE_PATH" env-default:"/api"`
	CORSOrigins     []string      `yaml:"cors-origins" env:"SHARE_CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173,http://localhost:3000"`
	MaxUploadBytes  int64         `yaml:"max-upload-bytes" env:"SHARE_MAX_UPLOAD_BYTES" env-default:"52428800"`
	RateLimit       int           `yaml:"rate-limit" env:"SHARE_RATE_LIMIT" env-default:"120"` // requests per minute per IP, 0 disables
	ReadTimeout     time.Duration `yaml:"read-timeout" env:"SHARE_READ_TIMEOUT" env-default:"5m"`
	WriteTimeout    time.Duration `yaml:"write-timeout" env:"SHARE_WRITE_TIMEOUT" env-default:"10m"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout" env:"SHARE_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type StoreConfig struct {
	Backend     string `yaml:"backend" env:"SHARE_STORE" env-default:"memory"` // memory, postgres or redis
	DatabaseURL string `yaml:"database-url" env:"SHARE_DATABASE_URL"`
	Migrate     bool   `yaml:"migrate" env:"SHARE_AUTO_MIGRATE" env-default:"true"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"SHARE_REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"SHARE_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"SHARE_REDIS_DB" env-default:"0"`
	Prefix   string `yaml:"prefix" env:"SHARE_REDIS_PREFIX" env-default:"shareonair:"`
}

type BlobConfig struct {
	Backend string `yaml:"backend" env:"SHARE_BLOB" env-default:"fs"` // fs or minio
	Dir     string `yaml:"dir" env:"SHARE_BLOB_DIR" env-default:"uploads"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint" env:"SHARE_S3_ENDPOINT"`
	AccessKey    string `yaml:"access-key" env:"SHARE_S3_ACCESS_KEY"`
	SecretKey    string `yaml:"secret-key" env:"SHARE_S3_SECRET_KEY"`
	Bucket       string `yaml:"bucket" env:"SHARE_S3_BUCKET"`
	Prefix       string `yaml:"prefix" env:"SHARE_S3_PREFIX" env-default:"shares/"`
	CreateBucket bool   `yaml:"create-bucket" env:"SHARE_S3_CREATE_BUCKET" env-default:"false"`
}

type ShareConfig struct {
	DefaultTTL      time.Duration `yaml:"default-ttl" env:"SHARE_DEFAULT_TTL" env-default:"168h"`
	MaxTTL          time.Duration `yaml:"max-ttl" env:"SHARE_MAX_TTL" env-default:"720h"`
	DefaultMaxViews int           `yaml:"default-max-views" env:"SHARE_DEFAULT_MAX_VIEWS" env-default:"100"`
	MaxViews        int           `yaml:"max-views" env:"SHARE_MAX_VIEWS" env-default:"1000"`
	CodeAttempts    int           `yaml:"code-attempts" env:"SHARE_CODE_ATTEMPTS" env-default:"10"`
}

type ReaperConfig struct {
	Enabled     bool          `yaml:"enabled" env:"SHARE_REAPER_ENABLED" env-default:"true"`
	Schedule    string        `yaml:"schedule" env:"SHARE_REAPER_SCHEDULE" env-default:"@every 1h"`
	OrphanGrace time.Duration `yaml:"orphan-grace" env:"SHARE_REAPER_ORPHAN_GRACE" env-default:"1h"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"SHARE_LOG_LEVEL" env-default:"info"`
	File       string `yaml:"file" env:"SHARE_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max-size-mb" env:"SHARE_LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `yaml:"max-backups" env:"SHARE_LOG_MAX_BACKUPS" env-default:"3"`
	MaxAgeDays int    `yaml:"max-age-days" env:"SHARE_LOG_MAX_AGE_DAYS" env-default:"28"`
}

// Load reads path (when non-empty) and then the environment, which wins
// over the file. The result is validated.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage describes every environment variable for --help output.
func Usage() (string, error) {
	var cfg Config
	return cleanenv.GetDescription(&cfg, nil)
}
