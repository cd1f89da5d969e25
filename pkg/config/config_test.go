package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.IsDevelopment())
	assert.Equal(t, 10*time.Minute, cfg.JWT.EmailVerifyTTL)
	assert.Equal(t, 10*time.Minute, cfg.JWT.PasswordResetTTL)
	assert.Equal(t, 90*24*time.Hour, cfg.JWT.Expiry())
	assert.Equal(t, 90*24*60*60, cfg.JWT.CookieMaxAge())
	assert.Equal(t, "*/30 * * * *", cfg.Worker.PurgeSchedule)
	assert.Equal(t, 300, cfg.RateLimit.UserRequests)
	assert.False(t, cfg.Email.Configured())
}

func TestLoad_Environment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("EMAIL_VERIFY_TTL", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("APP_BASE_URL", "https://api.school.test/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.JWT.EmailVerifyTTL)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://api.school.test", cfg.Server.BaseURL)
}

func TestLoad_RejectsDefaultSecretInProduction(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_ENV", "production")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
