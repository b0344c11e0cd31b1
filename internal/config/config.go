package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AstriaConfig holds provider connection settings
type AstriaConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// TuneConfig holds the fixed model-family parameters sent with every training job
type TuneConfig struct {
	BaseTuneID  int    `yaml:"base_tune_id"`
	ModelType   string `yaml:"model_type"`
	Preset      string `yaml:"preset"`
	ClassName   string `yaml:"class_name"`
	CallbackURL string `yaml:"callback_url"`
}

// PromptConfig holds the quality flags sent with every generation job
type PromptConfig struct {
	SuperResolution bool `yaml:"super_resolution"`
	InpaintFaces    bool `yaml:"inpaint_faces"`
}

// PollConfig bounds the wait for a prompt result
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// RateLimitConfig holds per-client limits for the API routes
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Config holds all configuration for the application
type Config struct {
	Port      int             `yaml:"port"`
	StaticDir string          `yaml:"static_dir"`
	ProbeCron string          `yaml:"probe_cron"`
	Dev       bool            `yaml:"dev"`
	Astria    AstriaConfig    `yaml:"astria"`
	Tune      TuneConfig      `yaml:"tune"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Poll      PollConfig      `yaml:"poll"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Port:      3000,
		StaticDir: "public",
		ProbeCron: "0 */5 * * * *",
		Astria: AstriaConfig{
			BaseURL:     "https://api.astria.ai",
			HTTPTimeout: 30 * time.Second,
		},
		Tune: TuneConfig{
			BaseTuneID: 1504944, // Flux.1 dev
			ModelType:  "lora",
			Preset:     "flux-lora-portrait",
			ClassName:  "person",
		},
		Prompt: PromptConfig{
			SuperResolution: true,
			InpaintFaces:    true,
		},
		Poll: PollConfig{
			Interval:    2 * time.Second,
			MaxAttempts: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
	}
}

// Load loads the configuration from an optional YAML file and environment variables.
// Environment variables win over the file.
func Load() (*Config, error) {
	// .env is optional in deployments that inject the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := Default()

	if path := os.Getenv("RELAY_CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("ASTRIA_API_KEY"); ok {
		c.Astria.APIKey = v
	}
	if v := os.Getenv("ASTRIA_BASE_URL"); v != "" {
		c.Astria.BaseURL = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		c.StaticDir = v
	}
	if v, ok := os.LookupEnv("PROVIDER_PROBE_CRON"); ok {
		c.ProbeCron = v
	}
	if v := os.Getenv("TUNE_MODEL_TYPE"); v != "" {
		c.Tune.ModelType = v
	}
	if v := os.Getenv("TUNE_PRESET"); v != "" {
		c.Tune.Preset = v
	}
	if v := os.Getenv("TUNE_CLASS_NAME"); v != "" {
		c.Tune.ClassName = v
	}
	if v := os.Getenv("TUNE_CALLBACK_URL"); v != "" {
		c.Tune.CallbackURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	// Numeric values keep their current value when unset or malformed
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		c.Port = port
	}
	if timeout, err := strconv.Atoi(os.Getenv("ASTRIA_HTTP_TIMEOUT")); err == nil {
		c.Astria.HTTPTimeout = time.Duration(timeout) * time.Second
	}
	if interval, err := strconv.Atoi(os.Getenv("POLL_INTERVAL")); err == nil {
		c.Poll.Interval = time.Duration(interval) * time.Second
	}
	if attempts, err := strconv.Atoi(os.Getenv("POLL_MAX_ATTEMPTS")); err == nil {
		c.Poll.MaxAttempts = attempts
	}
	if baseID, err := strconv.Atoi(os.Getenv("TUNE_BASE_ID")); err == nil {
		c.Tune.BaseTuneID = baseID
	}
	if rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64); err == nil {
		c.RateLimit.RPS = rps
	}
	if burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST")); err == nil {
		c.RateLimit.Burst = burst
	}
	if sr, err := strconv.ParseBool(os.Getenv("PROMPT_SUPER_RESOLUTION")); err == nil {
		c.Prompt.SuperResolution = sr
	}
	if inpaint, err := strconv.ParseBool(os.Getenv("PROMPT_INPAINT_FACES")); err == nil {
		c.Prompt.InpaintFaces = inpaint
	}
	if dev, err := strconv.ParseBool(os.Getenv("DEV")); err == nil {
		c.Dev = dev
	}
}

// Validate rejects values the relay cannot run with. A missing API key is not an
// error here: it is reported on each request instead.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	u, err := url.Parse(c.Astria.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ASTRIA_BASE_URL is not a valid URL: %q", c.Astria.BaseURL)
	}
	if c.Astria.HTTPTimeout <= 0 {
		return fmt.Errorf("ASTRIA_HTTP_TIMEOUT must be positive")
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("POLL_INTERVAL must not be negative")
	}
	if c.Poll.MaxAttempts < 1 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1, got %d", c.Poll.MaxAttempts)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}

// HasCredential reports whether the provider credential is configured
func (c *Config) HasCredential() bool {
	return c.Astria.APIKey != ""
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
