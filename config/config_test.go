package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every bound variable; viper treats empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, names := range envBindings {
		for _, n := range names {
			t.Setenv(n, "")
		}
	}
}

func writeJSON(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "s3cret")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "5001", cfg.AppPort)
	assert.Equal(t, "sqlite:///app.db", cfg.DatabaseURL)
	assert.Equal(t, "uploads", cfg.UploadFolder)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "smtp.gmail.com", cfg.MailServer)
	assert.Equal(t, 587, cfg.MailPort)
	assert.True(t, cfg.MailUseTLS)
	assert.Equal(t, "local", cfg.PushBackend)
	assert.Equal(t, "a photo of a rice leaf with %s", cfg.CLIPPromptTemplate)
	assert.Equal(t, time.Hour, cfg.JWTExpiry())
	assert.Equal(t, 120*time.Second, cfg.InferenceTimeout())
	assert.False(t, cfg.RedisEnabled())
	assert.Zero(t, cfg.RateLimitPerMinute)
}

func TestLoadFromMissingSecret(t *testing.T) {
	clearEnv(t)

	_, err := LoadFrom("")
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestLoadFromFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeJSON(t, `{
		"app_port": "8080",
		"jwt_secret": "from-file",
		"database_url": "postgres://u:p@db:5432/paddy",
		"allowed_origins": ["https://a.example", "https://b.example"],
		"redis_host": "cache",
		"clip_base_url": "http://clip:9000/"
	}`)

	t.Run("file values", func(t *testing.T) {
		cfg, err := LoadFrom(path)
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "from-file", cfg.JWTSecret)
		assert.Equal(t, "postgres://u:p@db:5432/paddy", cfg.DatabaseURL)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
		assert.True(t, cfg.RedisEnabled())
		assert.Equal(t, "http://clip:9000", cfg.CLIPBaseURL)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		t.Setenv("JWT_SECRET", "from-env")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://x.example, https://y.example")
		t.Setenv("MAIL_USERNAME", "bot@example.com")
		t.Setenv("JWT_EXPIRY_MINUTES", "15")

		cfg, err := LoadFrom(path)
		require.NoError(t, err)
		assert.Equal(t, "9000", cfg.AppPort)
		assert.Equal(t, "from-env", cfg.JWTSecret)
		assert.Equal(t, []string{"https://x.example", "https://y.example"}, cfg.AllowedOrigins)
		assert.Equal(t, "bot@example.com", cfg.MailFrom)
		assert.Equal(t, 15*time.Minute, cfg.JWTExpiry())
	})
}

func TestLoadFromMalformedFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	path := writeJSON(t, `{"app_port": `)

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestSetAndGet(t *testing.T) {
	Set(AppConfig{AppPort: "1234", JWTSecret: "x"})
	got := Get()
	assert.Equal(t, "1234", got.AppPort)
}
