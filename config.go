package networking

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding values read from a config file.
const (
	EnvBaseURL        = "NETWORKING_BASE_URL"
	EnvAcceptLanguage = "NETWORKING_ACCEPT_LANGUAGE"
	EnvLogLevel       = "NETWORKING_LOG_LEVEL"
	EnvTimeout        = "NETWORKING_TIMEOUT"
)

// Config is the file form of the dispatcher configuration.
type Config struct {
	BaseURL            string               `yaml:"baseURL"`
	Timeout            string               `yaml:"timeout"`
	AcceptLanguage     string               `yaml:"acceptLanguage"`
	LogLevel           string               `yaml:"logLevel"`
	UserAgent          string               `yaml:"userAgent"`
	EncryptionRequired bool                 `yaml:"encryptionRequired"`
	Metrics            bool                 `yaml:"metrics"`
	SSL                SSLConfig            `yaml:"ssl"`
	CircuitBreaker     *CircuitBreakerEntry `yaml:"circuitBreaker"`
	RateLimit          *RateLimitEntry      `yaml:"rateLimit"`
	App                AppInfo              `yaml:"app"`
}

// SSLConfig selects the certificate validation strategy: "default", "none"
// or "pinning".
type SSLConfig struct {
	Mode string   `yaml:"mode"`
	Pins []string `yaml:"pins"`
}

// CircuitBreakerEntry is the file form of CircuitBreakerConfig.
type CircuitBreakerEntry struct {
	Name             string `yaml:"name"`
	FailureThreshold int    `yaml:"failureThreshold"`
	RecoveryTimeout  string `yaml:"recoveryTimeout"`
	SuccessThreshold int    `yaml:"successThreshold"`
}

// RateLimitEntry configures WithRateLimiter.
type RateLimitEntry struct {
	MaxTokens  int    `yaml:"maxTokens"`
	RefillRate string `yaml:"refillRate"`
}

// LoadConfig reads a YAML config file and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config and applies environment overrides.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvAcceptLanguage); v != "" {
		c.AcceptLanguage = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		c.Timeout = v
	}
}

// Options converts the config to dispatcher options. Values left empty keep
// the dispatcher defaults.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		opts = append(opts, WithTimeout(d))
	}
	if c.AcceptLanguage != "" {
		opts = append(opts, WithAcceptLanguage(c.AcceptLanguage))
	}
	if c.LogLevel != "" {
		level, err := ParseLogLevel(c.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLogLevel(level))
	}

	switch {
	case c.UserAgent == "system":
		opts = append(opts, WithUserAgent(SystemDefaultUserAgent()))
	case c.UserAgent != "":
		opts = append(opts, WithUserAgent(CustomUserAgent(c.UserAgent)))
	case c.App != (AppInfo{}):
		opts = append(opts, WithUserAgent(LibraryDefaultUserAgent(c.App)))
	}

	if c.EncryptionRequired {
		opts = append(opts, WithEncryptionPolicy(EncryptionRequired))
	}
	if c.Metrics {
		opts = append(opts, WithMetrics())
	}

	switch c.SSL.Mode {
	case "", "default":
	case "none":
		opts = append(opts, WithSSLValidation(SSLValidationNone()))
	case "pinning":
		opts = append(opts, WithSSLValidation(SSLValidationPinning(c.SSL.Pins...)))
	default:
		return nil, fmt.Errorf("unknown ssl mode %q", c.SSL.Mode)
	}

	if cb := c.CircuitBreaker; cb != nil {
		cfg := CircuitBreakerConfig{
			Name:             cb.Name,
			FailureThreshold: cb.FailureThreshold,
			SuccessThreshold: cb.SuccessThreshold,
		}
		if cb.RecoveryTimeout != "" {
			d, err := time.ParseDuration(cb.RecoveryTimeout)
			if err != nil {
				return nil, fmt.Errorf("circuitBreaker.recoveryTimeout: %w", err)
			}
			cfg.RecoveryTimeout = d
		}
		opts = append(opts, WithCircuitBreaker(cfg))
	}

	if rl := c.RateLimit; rl != nil {
		d, err := time.ParseDuration(rl.RefillRate)
		if err != nil {
			return nil, fmt.Errorf("rateLimit.refillRate: %w", err)
		}
		opts = append(opts, WithRateLimiter(rl.MaxTokens, d))
	}

	return opts, nil
}

// NewFromConfig builds a Dispatcher from cfg followed by extra options.
func NewFromConfig(cfg *Config, extra ...Option) (*Dispatcher, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, &ApiError{Kind: ConfigurationFailure, Message: "invalid configuration file", Cause: err, Timestamp: time.Now()}
	}
	return New(cfg.BaseURL, append(opts, extra...)...)
}
