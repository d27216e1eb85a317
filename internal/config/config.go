// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Login    LoginConfig    `mapstructure:"login" yaml:"login"`
	Cart     CartConfig     `mapstructure:"cart" yaml:"cart"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
}

// LoggerConfig configures the zap logger and the rotated file sink.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the chromedp browser context.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleWait        time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// ExecutorConfig selects and tunes the action-executor backend.
type ExecutorConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"`
	Model           string        `mapstructure:"model" yaml:"model"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature     float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
	// PageExcerptLimit bounds how much page text rides along with an intent.
	PageExcerptLimit int `mapstructure:"page_excerpt_limit" yaml:"page_excerpt_limit"`
}

// LoginConfig tunes the login state machine.
type LoginConfig struct {
	// ManualWaitDeadline bounds how long the run waits for a human to finish
	// an out-of-band step (OTP, captcha, 2FA).
	ManualWaitDeadline time.Duration `mapstructure:"manual_wait_deadline" yaml:"manual_wait_deadline"`
	// PollInterval is how often the machine re-probes while waiting on a human.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// VerifyAttempts bounds post-submission verification probes before the
	// attempt is declared failed.
	VerifyAttempts int           `mapstructure:"verify_attempts" yaml:"verify_attempts"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// CartConfig tunes the per-item act-then-verify protocol.
type CartConfig struct {
	// RetryBound is the number of retries after the first attempt, so an
	// always-failing item consumes RetryBound+1 executor calls.
	RetryBound  int           `mapstructure:"retry_bound" yaml:"retry_bound"`
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
}

// SessionConfig controls session persistence.
type SessionConfig struct {
	// Dir is the session directory; empty means ~/.cartwright/sessions.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// UseSession enables restoring a persisted record at run start.
	UseSession bool `mapstructure:"use_session" yaml:"use_session"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cartwright")
	v.SetDefault("logger.log_file", "cartwright.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	// Headed by default: manual login steps need a window the user can reach.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.settle_wait", "2s")

	// -- Executor --
	v.SetDefault("executor.provider", "gemini")
	v.SetDefault("executor.model", "gemini-2.5-flash")
	// Registered so the env-bound value survives Unmarshal; never set here.
	v.SetDefault("executor.api_key", "")
	v.SetDefault("executor.api_timeout", "90s")
	v.SetDefault("executor.temperature", 0.2)
	v.SetDefault("executor.max_retry_elapsed", "2m")
	v.SetDefault("executor.page_excerpt_limit", 4096)

	// -- Login --
	v.SetDefault("login.manual_wait_deadline", "120s")
	v.SetDefault("login.poll_interval", "5s")
	v.SetDefault("login.verify_attempts", 3)
	v.SetDefault("login.probe_timeout", "15s")

	// -- Cart --
	v.SetDefault("cart.retry_bound", 2)
	v.SetDefault("cart.step_timeout", "3m")

	// -- Session --
	v.SetDefault("session.dir", "")
	v.SetDefault("session.use_session", true)
}

// NewConfigFromViper unmarshals and validates a configuration instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	// The executor API key is sensitive; it only ever arrives via env.
	_ = v.BindEnv("executor.api_key", "CARTWRIGHT_EXECUTOR_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the static defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Cart.RetryBound < 0 {
		return fmt.Errorf("cart.retry_bound must not be negative")
	}
	if c.Login.ManualWaitDeadline <= 0 {
		return fmt.Errorf("login.manual_wait_deadline must be a positive duration")
	}
	if c.Login.PollInterval <= 0 {
		return fmt.Errorf("login.poll_interval must be a positive duration")
	}
	if c.Login.VerifyAttempts <= 0 {
		return fmt.Errorf("login.verify_attempts must be greater than 0")
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive")
	}
	return nil
}
