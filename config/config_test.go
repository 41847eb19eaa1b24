package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingEnv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "")
	cfg, err := LoadConfig(missingEnv(t), "")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Escalation.Interval)
	assert.Equal(t, 500, cfg.Escalation.BatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Escalation.DedupWindow)
	assert.Equal(t, "in_app", cfg.Notification.Channel)
	assert.Equal(t, 10, cfg.Rewards.PointsPerClosure)
	assert.True(t, cfg.InsecureSecret())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SYSTEM_TOKEN", "sys")
	t.Setenv("ESCALATION_BATCH_SIZE", "50")
	t.Setenv("ESCALATION_INTERVAL", "15m")
	t.Setenv("NOTIFICATION_CHANNEL", "email")

	cfg, err := LoadConfig(missingEnv(t), "")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sys", cfg.Auth.SystemToken)
	assert.Equal(t, 50, cfg.Escalation.BatchSize)
	assert.Equal(t, 15*time.Minute, cfg.Escalation.Interval)
	assert.Equal(t, "email", cfg.Notification.Channel)
	assert.False(t, cfg.InsecureSecret())
}

func TestLoadConfig_EnvFileAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DB_NAME=complaints_test\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DB_NAME") })

	yamlFile := filepath.Join(dir, "civicflow.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte("rewards:\n  points_per_closure: 25\n"), 0o600))

	cfg, err := LoadConfig(envFile, yamlFile)
	require.NoError(t, err)
	assert.Equal(t, "complaints_test", cfg.Database.DBName)
	assert.Equal(t, 25, cfg.Rewards.PointsPerClosure)

	_, err = LoadConfig(envFile, filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Auth:         AuthConfig{JWTSecret: "x"},
			Escalation:   EscalationConfig{Interval: time.Minute},
			Notification: NotificationConfig{Channel: "sms", WorkerInterval: time.Second},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"empty secret":    func(c *Config) { c.Auth.JWTSecret = "" },
		"zero interval":   func(c *Config) { c.Escalation.Interval = 0 },
		"worker interval": func(c *Config) { c.Notification.WorkerInterval = -time.Second },
		"bad channel":     func(c *Config) { c.Notification.Channel = "pigeon" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: "3307", User: "app", Password: "pw", DBName: "civicflow"}
	parsed, err := mysql.ParseDSN(db.DSN())
	require.NoError(t, err)
	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "pw", parsed.Passwd)
	assert.Equal(t, "db:3307", parsed.Addr)
	assert.Equal(t, "civicflow", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)

	db.DatabaseURL = "u:p@tcp(h:1)/x"
	assert.Equal(t, "u:p@tcp(h:1)/x", db.DSN())
}
