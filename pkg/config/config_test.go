package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvDev, cfg.Env)
	require.Equal(t, 8888, cfg.Server.Port)
	require.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	require.True(t, cfg.Sweep.Enabled)
	require.Equal(t, time.Hour, cfg.Sweep.Interval)
	require.Equal(t, "subscription_events", cfg.RabbitMQ.Exchange)
	require.Equal(t, 5*time.Minute, cfg.Redis.PlanCacheTTL)
	require.False(t, cfg.Auth.BootstrapAdmin.Enabled())
}

func TestNew_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.yaml")
	content := []byte(`
env: prod
server:
  port: 9000
auth:
  jwt_secret: from-file
  token_ttl: 30m
  bootstrap_admin:
    email: admin@example.com
    username: admin
    password: admin-password
sweep:
  interval: 10m
`)
	require.NoError(t, os.WriteFile(file, content, 0o600))
	t.Setenv("APP_CONFIG_FILE", file)
	t.Setenv("APP_SWEEP_INTERVAL", "15m")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvProd, cfg.Env)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "from-file", cfg.Auth.JWTSecret)
	require.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	require.Equal(t, 15*time.Minute, cfg.Sweep.Interval)
	require.True(t, cfg.Auth.BootstrapAdmin.Enabled())
}

func TestNew_MissingExplicitFileFails(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := New()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:    EnvDev,
			Server: ServerConfig{Port: 8888},
			Auth:   AuthConfig{JWTSecret: "s", TokenTTL: time.Hour},
			Sweep:  SweepConfig{Interval: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "empty secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{name: "dev secret in prod", mutate: func(c *Config) { c.Env = EnvProd; c.Auth.JWTSecret = devJWTSecret }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.Auth.TokenTTL = 0 }, wantErr: true},
		{name: "negative interval", mutate: func(c *Config) { c.Sweep.Interval = -time.Second }, wantErr: true},
		{name: "sweep ticker disabled", mutate: func(c *Config) { c.Sweep.Interval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
