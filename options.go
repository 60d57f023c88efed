package networking

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option represents a configuration option
type Option func(*Dispatcher)

// WithTimeout sets the request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Dispatcher) {
		c.timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client. The dispatcher works on a copy,
// so the timeout and TLS settings it applies never leak into client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Dispatcher) {
		c.httpClient = client
	}
}

// WithCodec replaces the default strict JSON codec
func WithCodec(codec Codec) Option {
	return func(c *Dispatcher) {
		c.codec = codec
	}
}

// WithSigner sets the signing capability used by signed endpoints
func WithSigner(signer Signer) Option {
	return func(c *Dispatcher) {
		c.signer = signer
	}
}

// WithTokenProvider sets the token source used by token endpoints
func WithTokenProvider(provider TokenProvider) Option {
	return func(c *Dispatcher) {
		c.tokens = provider
	}
}

// WithAcceptLanguage sets the Accept-Language header. Locales such as
// "cs_CZ" are normalized to language tags.
func WithAcceptLanguage(lang string) Option {
	return func(c *Dispatcher) {
		c.acceptLanguage = LanguageTag(lang)
	}
}

// WithUserAgent selects the User-Agent strategy
func WithUserAgent(ua UserAgent) Option {
	return func(c *Dispatcher) {
		c.userAgent = ua
	}
}

// WithEncryptionPolicy sets what happens when an encryptor declines
func WithEncryptionPolicy(policy EncryptionPolicy) Option {
	return func(c *Dispatcher) {
		c.encryptionPolicy = policy
	}
}

// WithSSLValidation sets the certificate validation strategy
func WithSSLValidation(v SSLValidation) Option {
	return func(c *Dispatcher) {
		c.sslValidation = v
	}
}

// WithMiddleware adds middleware to the dispatcher
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Dispatcher) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithCircuitBreaker guards the transport with a circuit breaker
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Dispatcher) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithRateLimiter limits requests to maxTokens per burst, refilling one token
// every refillRate. Requests over the limit wait.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Dispatcher) {
		c.rateLimiter = NewRateLimiter(maxTokens, refillRate)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Dispatcher) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsRegistry enables metrics on the given registerer
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(c *Dispatcher) {
		c.metrics = NewMetricsCollectorWithRegistry(registry)
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Dispatcher) {
		c.metrics = collector
	}
}

// WithLogger sets the logger. Without it the dispatcher logs text records
// to the standard logger's output, filtered by the log level.
func WithLogger(logger Logger) Option {
	return func(c *Dispatcher) {
		c.logger = logger
	}
}

// WithLogLevel sets the logging verbosity
func WithLogLevel(level LogLevel) Option {
	return func(c *Dispatcher) {
		c.logLevel = level
	}
}

// WithSimpleLogger logs everything to the console
func WithSimpleLogger() Option {
	return func(c *Dispatcher) {
		c.logger = NewSimpleLogger()
		c.logLevel = LogDebug
	}
}

// WithDebugLogging logs every request and response, bodies cut at maxBody
// bytes. It raises the log level to LogDebug.
func WithDebugLogging(maxBody int) Option {
	return func(c *Dispatcher) {
		c.logLevel = LogDebug
		c.middleware = append(c.middleware, func(req *http.Request, next RoundTripper) (*http.Response, error) {
			return LoggingMiddleware(c.logger, maxBody)(req, next)
		})
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Dispatcher) {
		c.requestIDGen = gen
	}
}

// WithDecryptedResponseObserver receives every decrypted response body
// before it is decoded.
func WithDecryptedResponseObserver(fn func(url string, plain []byte)) Option {
	return func(c *Dispatcher) {
		c.responseObserver = fn
	}
}

// ValidateConfiguration validates the dispatcher configuration and returns an error if invalid
func (c *Dispatcher) ValidateConfiguration() error {
	var errs []string

	baseURLErr := c.validateBaseURL()
	if baseURLErr != "" {
		errs = append(errs, baseURLErr)
	}
	errs = append(errs, c.validateTransportConfig()...)
	errs = append(errs, c.validateCircuitBreakerConfig()...)
	errs = append(errs, c.validateMiddlewareConfig()...)
	errs = append(errs, c.validateHeaderConfig()...)
	errs = append(errs, c.validateExtremeValues()...)

	if len(errs) == 0 {
		return nil
	}

	cause := fmt.Errorf("validation errors: %v", errs)
	if baseURLErr != "" {
		cause = fmt.Errorf("%w; validation errors: %v", ErrInvalidBaseURL, errs)
	}
	return &ApiError{
		Kind:      ConfigurationFailure,
		Message:   "configuration validation failed",
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func (c *Dispatcher) validateBaseURL() string {
	if c.baseURL == "" {
		return "baseURL must not be empty"
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Sprintf("baseURL is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "baseURL must use http or https"
	}
	if u.Host == "" {
		return "baseURL must include a host"
	}
	return ""
}

// validateTransportConfig validates HTTP client, timeout and codec configuration
func (c *Dispatcher) validateTransportConfig() []string {
	var errs []string

	if c.httpClient == nil {
		errs = append(errs, "HTTP client cannot be nil")
	}
	if c.timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	if c.codec == nil {
		errs = append(errs, "codec cannot be nil")
	}
	if err := c.sslValidation.err; err != nil {
		errs = append(errs, err.Error())
	}

	return errs
}

// validateCircuitBreakerConfig validates circuit breaker and rate limiter configuration
func (c *Dispatcher) validateCircuitBreakerConfig() []string {
	var errs []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			errs = append(errs, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			errs = append(errs, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			errs = append(errs, "circuitBreaker SuccessThreshold must be positive")
		}
	}

	if c.rateLimiter != nil {
		if c.rateLimiter.maxTokens <= 0 {
			errs = append(errs, "rateLimiter maxTokens must be positive")
		}
		if c.rateLimiter.refillRate <= 0 {
			errs = append(errs, "rateLimiter refillRate must be positive")
		}
	}

	return errs
}

// validateMiddlewareConfig validates middleware configuration
func (c *Dispatcher) validateMiddlewareConfig() []string {
	var errs []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errs = append(errs, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errs
}

// validateHeaderConfig validates fixed header and logging configuration
func (c *Dispatcher) validateHeaderConfig() []string {
	var errs []string

	if c.acceptLanguage == "" || c.acceptLanguage == "und" {
		errs = append(errs, "acceptLanguage must be a valid language tag")
	}
	if c.logLevel < LogOff || c.logLevel > LogDebug {
		errs = append(errs, fmt.Sprintf("unknown log level %d", int(c.logLevel)))
	}
	if c.encryptionPolicy != EncryptionOptional && c.encryptionPolicy != EncryptionRequired {
		errs = append(errs, fmt.Sprintf("unknown encryption policy %d", int(c.encryptionPolicy)))
	}

	return errs
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (c *Dispatcher) validateExtremeValues() []string {
	var errs []string

	if c.timeout > 10*time.Minute {
		errs = append(errs, "timeout > 10m may cause requests to hang for too long")
	}
	if c.circuitBreaker != nil && c.circuitBreaker.config.RecoveryTimeout > time.Hour {
		errs = append(errs, "circuitBreaker RecoveryTimeout > 1h keeps the backend unreachable for too long")
	}

	return errs
}

// IsConfigurationError reports whether err came from configuration validation.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrKindConfiguration)
}
