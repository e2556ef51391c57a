package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds environment driven configuration values.
// Secrets have no defaults and must come from config/config.json or the environment.
type AppConfig struct {
	AppPort     string `mapstructure:"app_port"`
	Environment string `mapstructure:"environment"`
	// Gin framework configuration
	GinMode string `mapstructure:"gin_mode"`
	GinPath string `mapstructure:"gin_log_path"`

	JWTSecret        string `mapstructure:"jwt_secret"`
	JWTExpiryMinutes int    `mapstructure:"jwt_expiry_minutes"`

	DatabaseURL    string   `mapstructure:"database_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Opt-in per-IP token bucket on register/login; 0 disables it
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`

	// Uploads are temporary; the sweeper removes anything older than UploadSweepMinutes.
	UploadFolder       string `mapstructure:"upload_folder"`
	MaxUploadMB        int    `mapstructure:"max_upload_mb"`
	UploadSweepMinutes int    `mapstructure:"upload_sweep_minutes"`

	// SMTP for the welcome mail
	MailServer   string `mapstructure:"mail_server"`
	MailPort     int    `mapstructure:"mail_port"`
	MailUseTLS   bool   `mapstructure:"mail_use_tls"`
	MailUsername string `mapstructure:"mail_username"`
	MailPassword string `mapstructure:"mail_password"`
	MailFrom     string `mapstructure:"mail_from"`
	MailFromName string `mapstructure:"mail_from_name"`

	// Redis is optional. An empty host disables it.
	RedisHost     string `mapstructure:"redis_host"`
	RedisPort     int    `mapstructure:"redis_port"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPassword string `mapstructure:"redis_password"`

	PushBackend string `mapstructure:"push_backend"`
	PushChannel string `mapstructure:"push_channel"`

	// Zero-shot classifier backed by a CLIP embedding server
	CLIPBaseURL         string `mapstructure:"clip_base_url"`
	CLIPModel           string `mapstructure:"clip_model"`
	CLIPAPIKey          string `mapstructure:"clip_api_key"`
	CLIPPromptTemplate  string `mapstructure:"clip_prompt_template"`
	InferenceTimeoutSec int    `mapstructure:"inference_timeout_sec"`

	// Logging configuration
	LogLevel      string `mapstructure:"log_level"`
	LogPath       string `mapstructure:"log_path"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`
	LogCompress   bool   `mapstructure:"log_compress"`

	SentryDSN string `mapstructure:"sentry_dsn"`
}

// JWTExpiry returns the access token lifetime.
func (c AppConfig) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryMinutes) * time.Minute
}

// InferenceTimeout bounds a single call to the embedding server.
func (c AppConfig) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutSec) * time.Second
}

// RedisEnabled reports whether a Redis host was configured.
func (c AppConfig) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisHost) != ""
}

// DefaultPath is where Load looks for the JSON config file.
var DefaultPath = filepath.Join("config", "config.json")

// ErrMissingJWTSecret is returned when no signing secret was provided.
var ErrMissingJWTSecret = errors.New("JWT_SECRET_KEY must be set in config or environment")

var (
	mu     sync.RWMutex
	cfg    AppConfig
	loaded bool
)

// envBindings maps config keys to the environment variables that may override them.
// The first name listed wins when several are set.
var envBindings = map[string][]string{
	"app_port":              {"APP_PORT", "PORT"},
	"environment":           {"APP_ENV"},
	"gin_mode":              {"GIN_MODE"},
	"gin_log_path":          {"GIN_LOG_PATH"},
	"jwt_secret":            {"JWT_SECRET_KEY", "JWT_SECRET"},
	"jwt_expiry_minutes":    {"JWT_EXPIRY_MINUTES"},
	"database_url":          {"DATABASE_URL"},
	"allowed_origins":       {"CORS_ALLOWED_ORIGINS"},
	"rate_limit_per_minute": {"RATE_LIMIT_PER_MINUTE"},
	"upload_folder":         {"UPLOAD_FOLDER"},
	"max_upload_mb":         {"MAX_UPLOAD_MB"},
	"upload_sweep_minutes":  {"UPLOAD_SWEEP_MINUTES"},
	"mail_server":           {"MAIL_SERVER"},
	"mail_port":             {"MAIL_PORT"},
	"mail_use_tls":          {"MAIL_USE_TLS"},
	"mail_username":         {"MAIL_USERNAME"},
	"mail_password":         {"MAIL_PASSWORD"},
	"mail_from":             {"MAIL_FROM", "MAIL_DEFAULT_SENDER"},
	"mail_from_name":        {"MAIL_FROM_NAME"},
	"redis_host":            {"REDIS_HOST"},
	"redis_port":            {"REDIS_PORT"},
	"redis_db":              {"REDIS_DB"},
	"redis_password":        {"REDIS_PASSWORD"},
	"push_backend":          {"PUSH_BACKEND"},
	"push_channel":          {"PUSH_CHANNEL"},
	"clip_base_url":         {"CLIP_BASE_URL"},
	"clip_model":            {"CLIP_MODEL"},
	"clip_api_key":          {"CLIP_API_KEY"},
	"clip_prompt_template":  {"CLIP_PROMPT_TEMPLATE"},
	"inference_timeout_sec": {"INFERENCE_TIMEOUT_SEC"},
	"log_level":             {"LOG_LEVEL"},
	"log_path":              {"LOG_PATH"},
	"log_max_size_mb":       {"LOG_MAX_SIZE_MB"},
	"log_max_backups":       {"LOG_MAX_BACKUPS"},
	"log_max_age_days":      {"LOG_MAX_AGE_DAYS"},
	"log_compress":          {"LOG_COMPRESS"},
	"sentry_dsn":            {"SENTRY_DSN"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "5001")
	v.SetDefault("environment", "production")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("gin_log_path", "logs/gin.log")
	v.SetDefault("jwt_expiry_minutes", 60)
	v.SetDefault("database_url", "sqlite:///app.db")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rate_limit_per_minute", 0)
	v.SetDefault("upload_folder", "uploads")
	v.SetDefault("max_upload_mb", 16)
	v.SetDefault("upload_sweep_minutes", 60)
	v.SetDefault("mail_server", "smtp.gmail.com")
	v.SetDefault("mail_port", 587)
	v.SetDefault("mail_use_tls", true)
	v.SetDefault("mail_from_name", "PaddyHealth")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("push_backend", "local")
	v.SetDefault("push_channel", "paddyhealth:push")
	v.SetDefault("clip_base_url", "http://127.0.0.1:8000")
	v.SetDefault("clip_model", "ViT-B/32")
	v.SetDefault("clip_prompt_template", "a photo of a rice leaf with %s")
	v.SetDefault("inference_timeout_sec", 120)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_path", "logs/app.log")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 7)
}

// LoadFrom reads configuration with precedence: defaults -> JSON file -> environment.
// A missing file is not an error; an unreadable or malformed one is.
func LoadFrom(path string) (AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return AppConfig{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var out AppConfig
	if err := v.Unmarshal(&out); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	normalize(&out)

	if out.JWTSecret == "" {
		return AppConfig{}, ErrMissingJWTSecret
	}
	return out, nil
}

func normalize(c *AppConfig) {
	c.AllowedOrigins = readList(c.AllowedOrigins)
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.PushBackend = strings.ToLower(strings.TrimSpace(c.PushBackend))
	if c.MailFrom == "" {
		c.MailFrom = c.MailUsername
	}
	if c.JWTExpiryMinutes <= 0 {
		c.JWTExpiryMinutes = 60
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 16
	}
	c.CLIPBaseURL = strings.TrimRight(c.CLIPBaseURL, "/")
}

// readList splits comma separated entries that arrive as a single element
// (env values) and drops blanks.
func readList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Load loads the application configuration from DefaultPath. It should be called once during boot.
func Load() (AppConfig, error) {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg, nil
	}
	mu.RUnlock()

	c, err := LoadFrom(DefaultPath)
	if err != nil {
		return AppConfig{}, err
	}
	Set(c)
	return c, nil
}

// Set replaces the cached configuration.
func Set(c AppConfig) {
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
}

// Get returns the cached configuration. It panics when nothing was loaded and loading fails.
func Get() AppConfig {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}
