package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.Browser.Headless, "default is headed so manual login pages are visible")
	assert.Equal(t, 1280, cfg.Browser.WindowWidth)
	assert.Equal(t, 800, cfg.Browser.WindowHeight)

	assert.Equal(t, "gemini", cfg.Executor.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Executor.Model)
	assert.Empty(t, cfg.Executor.APIKey, "keys never come from defaults")

	assert.Equal(t, 120*time.Second, cfg.Login.ManualWaitDeadline)
	assert.Equal(t, 5*time.Second, cfg.Login.PollInterval)
	assert.Equal(t, 3, cfg.Login.VerifyAttempts)

	assert.Equal(t, 2, cfg.Cart.RetryBound)
	assert.True(t, cfg.Session.UseSession)
}

func TestNewConfigFromViper_Overrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("cart.retry_bound", 5)
	v.Set("login.manual_wait_deadline", "30s")
	v.Set("browser.headless", true)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Cart.RetryBound)
	assert.Equal(t, 30*time.Second, cfg.Login.ManualWaitDeadline)
	assert.True(t, cfg.Browser.Headless)
}

func TestNewConfigFromViper_APIKeyFromEnv(t *testing.T) {
	t.Setenv("CARTWRIGHT_EXECUTOR_API_KEY", "test-key-123")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "test-key-123", cfg.Executor.APIKey)
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative retry bound", func(c *Config) { c.Cart.RetryBound = -1 }, "retry_bound"},
		{"zero manual wait", func(c *Config) { c.Login.ManualWaitDeadline = 0 }, "manual_wait_deadline"},
		{"zero poll interval", func(c *Config) { c.Login.PollInterval = 0 }, "poll_interval"},
		{"zero verify attempts", func(c *Config) { c.Login.VerifyAttempts = 0 }, "verify_attempts"},
		{"zero window", func(c *Config) { c.Browser.WindowWidth = 0 }, "window_width"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
