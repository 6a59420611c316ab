package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears keys for the duration of the test, including values a
// loaded .env file adds.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		prev, had := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "PORTAL_BASE_URL", "DB_LOG_QUERIES", "LOG_LEVEL", "LOG_FORMAT", "APP_TIMEZONE", "PORTAL_CACHE_TTL")
	t.Setenv("PORTAL_SCHOOL", "astana")
	t.Setenv("PORTAL_API_DOMAIN", "alem.school")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "astana", cfg.Portal.School)
	assert.Equal(t, "portal", cfg.Portal.Connection)
	assert.Equal(t, "portal_session", cfg.Portal.SessionCookieName)
	assert.Equal(t, 30*time.Second, cfg.Portal.RequestTimeout)
	assert.Equal(t, "2006-01-02 15:04:05", cfg.Portal.StorageDateFormat)
	assert.Equal(t, "2006-01-02", cfg.Portal.DisplayDateFormat)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
	assert.NotNil(t, cfg.App.Location)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvFile(t *testing.T) {
	unsetEnv(t, "PORTAL_SCHOOL", "PORTAL_API_DOMAIN", "PORTAL_BASE_URL", "PORTAL_TOKEN", "PORTAL_RATE_LIMIT", "LOG_LEVEL")
	t.Setenv("PORTAL_TOKEN", "from-environment")

	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte(
		"PORTAL_BASE_URL=http://localhost:8080/api/\n"+
			"PORTAL_TOKEN=from-file\n"+
			"PORTAL_RATE_LIMIT=2.5\n"+
			"LOG_LEVEL=DEBUG\n",
	), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api/", cfg.Portal.BaseURL)
	assert.Equal(t, "from-environment", cfg.Portal.Token, "the environment wins over the file")
	assert.Equal(t, 2.5, cfg.Portal.RateLimit)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "no portal address",
			env:  map[string]string{},
			want: "Portal.School failed required_without=BaseURL",
		},
		{
			name: "bad log level",
			env:  map[string]string{"PORTAL_SCHOOL": "astana", "PORTAL_API_DOMAIN": "alem.school", "LOG_LEVEL": "loud"},
			want: "Observability.LogLevel failed oneof",
		},
		{
			name: "bad display format",
			env:  map[string]string{"PORTAL_SCHOOL": "astana", "PORTAL_API_DOMAIN": "alem.school", "PORTAL_DATE_DISPLAY_FORMAT": "dd.mm.yyyy"},
			want: "PORTAL_DATE_DISPLAY_FORMAT is not a date layout",
		},
		{
			name: "bad timezone",
			env:  map[string]string{"PORTAL_SCHOOL": "astana", "PORTAL_API_DOMAIN": "alem.school", "APP_TIMEZONE": "Mars/Olympus"},
			want: "APP_TIMEZONE",
		},
		{
			name: "query log without database",
			env:  map[string]string{"PORTAL_SCHOOL": "astana", "PORTAL_API_DOMAIN": "alem.school", "DB_LOG_QUERIES": "true"},
			want: "DATABASE_URL is required",
		},
		{
			name: "cache without redis",
			env:  map[string]string{"PORTAL_SCHOOL": "astana", "PORTAL_API_DOMAIN": "alem.school", "PORTAL_CACHE_TTL": "1m", "REDIS_DISABLED": "true"},
			want: "PORTAL_CACHE_TTL requires Redis",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t, "PORTAL_SCHOOL", "PORTAL_API_DOMAIN", "PORTAL_BASE_URL", "LOG_LEVEL",
				"PORTAL_DATE_DISPLAY_FORMAT", "APP_TIMEZONE", "DB_LOG_QUERIES", "DATABASE_URL",
				"PORTAL_CACHE_TTL", "REDIS_DISABLED")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(missingEnvFile(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "nope")
	t.Setenv("CFG_TEST_BOOL", "yes?")
	t.Setenv("CFG_TEST_DURATION", "90s")

	assert.Equal(t, 7, getEnvInt("CFG_TEST_INT", 7))
	assert.True(t, getEnvBool("CFG_TEST_BOOL", true))
	assert.Equal(t, 90*time.Second, getEnvDuration("CFG_TEST_DURATION", 0))
	assert.Equal(t, 1.5, getEnvFloat("CFG_TEST_MISSING", 1.5))

	t.Setenv("CFG_TEST_FLOAT", " 2.5 ")
	t.Setenv("CFG_TEST_DURATION", "30")
	assert.Equal(t, 2.5, getEnvFloat("CFG_TEST_FLOAT", 0))
	assert.Equal(t, time.Minute, getEnvDuration("CFG_TEST_DURATION", time.Minute))
}
