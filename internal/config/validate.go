package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError is one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects every configuration problem before failing.
type Validator struct {
	errors []ValidationError
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

func (v *Validator) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):\n", len(v.errors))
	for i, err := range v.errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "required value not set")
	}
}

// Addr accepts "host:port" and ":port".
func (v *Validator) Addr(field, value string) {
	if value == "" {
		return
	}
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(field, "must be host:port or :port")
		return
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		v.AddError(field, "port must be a number")
		return
	}
	if n < 1 || n > 65535 {
		v.AddError(field, "port must be between 1 and 65535")
	}
}

func (v *Validator) URL(field, value string, schemes ...string) {
	if value == "" {
		return
	}
	u, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL format: %v", err))
		return
	}
	if !slices.Contains(schemes, u.Scheme) {
		v.AddError(field, fmt.Sprintf("URL must use one of: %s", strings.Join(schemes, ", ")))
	}
}

func (v *Validator) Enum(field, value string, allowed []string) {
	if slices.Contains(allowed, value) {
		return
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

func (v *Validator) Positive(field string, value int64) {
	if value <= 0 {
		v.AddError(field, "must be a positive integer")
	}
}

func (v *Validator) NonNegative(field string, value int64) {
	if value < 0 {
		v.AddError(field, "must not be negative")
	}
}

// Validate checks the configuration as a whole. Backend specific settings
// are only required when that backend is selected.
func (c *Config) Validate() error {
	v := &Validator{}

	v.Addr("SHARE_ADDR", c.Server.Addr)
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		v.AddError("SHARE_BASE_PATH", "must start with /")
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin != "*" {
			v.URL("SHARE_CORS_ORIGINS", origin, "http", "https")
		}
	}
	v.Positive("SHARE_MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)
	v.NonNegative("SHARE_RATE_LIMIT", int64(c.Server.RateLimit))

	v.Enum("SHARE_STORE", c.Store.Backend, []string{"memory", "postgres", "redis"})
	switch c.Store.Backend {
	case "postgres":
		v.Required("SHARE_DATABASE_URL", c.Store.DatabaseURL)
		v.URL("SHARE_DATABASE_URL", c.Store.DatabaseURL, "postgres", "postgresql")
	case "redis":
		v.Required("SHARE_REDIS_ADDR", c.Redis.Addr)
		v.NonNegative("SHARE_REDIS_DB", int64(c.Redis.DB))
	}

	v.Enum("SHARE_BLOB", c.Blob.Backend, []string{"fs", "minio"})
	switch c.Blob.Backend {
	case "fs":
		v.Required("SHARE_BLOB_DIR", c.Blob.Dir)
	case "minio":
		v.Required("SHARE_S3_ENDPOINT", c.S3.Endpoint)
		v.Required("SHARE_S3_ACCESS_KEY", c.S3.AccessKey)
		v.Required("SHARE_S3_SECRET_KEY", c.S3.SecretKey)
		v.Required("SHARE_S3_BUCKET", c.S3.Bucket)
		if strings.Contains(c.S3.Endpoint, "://") {
			v.URL("SHARE_S3_ENDPOINT", c.S3.Endpoint, "http", "https")
		}
	}

	v.Positive("SHARE_DEFAULT_TTL", int64(c.Share.DefaultTTL))
	v.NonNegative("SHARE_MAX_TTL", int64(c.Share.MaxTTL))
	if c.Share.MaxTTL > 0 && c.Share.DefaultTTL > c.Share.MaxTTL {
		v.AddError("SHARE_DEFAULT_TTL", "must not exceed SHARE_MAX_TTL")
	}
	v.Positive("SHARE_DEFAULT_MAX_VIEWS", int64(c.Share.DefaultMaxViews))
	v.NonNegative("SHARE_MAX_VIEWS", int64(c.Share.MaxViews))
	if c.Share.MaxViews > 0 && c.Share.DefaultMaxViews > c.Share.MaxViews {
		v.AddError("SHARE_DEFAULT_MAX_VIEWS", "must not exceed SHARE_MAX_VIEWS")
	}
	v.Positive("SHARE_CODE_ATTEMPTS", int64(c.Share.CodeAttempts))

	if c.Reaper.Enabled {
		if _, err := cron.ParseStandard(c.Reaper.Schedule); err != nil {
			v.AddError("SHARE_REAPER_SCHEDULE", fmt.Sprintf("invalid schedule: %v", err))
		}
		v.Positive("SHARE_REAPER_ORPHAN_GRACE", int64(c.Reaper.OrphanGrace))
	}

	v.Enum("SHARE_LOG_LEVEL", c.Log.Level, []string{"debug", "info", "warn", "error"})

	if v.HasErrors() {
		return v
	}
	return nil
}

// Warnings lists settings that are valid but unsuitable for production.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Store.Backend == "memory" {
		warnings = append(warnings, "SHARE_STORE=memory: shares are lost on restart")
	}
	if c.Server.RateLimit == 0 {
		warnings = append(warnings, "SHARE_RATE_LIMIT=0: rate limiting disabled")
	}
	if !c.Reaper.Enabled {
		warnings = append(warnings, "SHARE_REAPER_ENABLED=false: expired shares are only removed when accessed")
	}
	if slices.Contains(c.Server.CORSOrigins, "*") {
		warnings = append(warnings, "SHARE_CORS_ORIGINS contains *: any origin may call the API")
	}
	return warnings
}
