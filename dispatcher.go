package networking

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Dispatcher sends authenticated, optionally end-to-end encrypted JSON POST
// requests to one backend and decodes typed responses. It is safe for
// concurrent use; every call builds its own headers and body.
type Dispatcher struct {
	baseURL          string
	httpClient       *http.Client
	timeout          time.Duration
	codec            Codec
	signer           Signer
	tokens           TokenProvider
	acceptLanguage   string
	userAgent        UserAgent
	encryptionPolicy EncryptionPolicy
	sslValidation    SSLValidation
	middleware       []Middleware
	circuitBreaker   *CircuitBreaker
	rateLimiter      *RateLimiter
	metrics          *MetricsCollector
	logger           Logger
	logLevel         LogLevel
	requestIDGen     func() string
	responseObserver func(url string, plain []byte)

	userAgentValue string
	chain          RoundTripper
}

// New constructs a Dispatcher for baseURL using the provided functional
// options. Every configuration problem is reported at once as a
// ConfigurationFailure *ApiError.
func New(baseURL string, options ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		timeout:          20 * time.Second,
		codec:            JSONCodec{Strict: true},
		acceptLanguage:   "en",
		userAgent:        LibraryDefaultUserAgent(AppInfo{}),
		encryptionPolicy: EncryptionOptional,
		sslValidation:    SSLValidationDefault(),
		middleware:       []Middleware{},
		logLevel:         LogWarning,
		requestIDGen:     uuid.NewString,
	}

	for _, option := range options {
		option(d)
	}

	if err := d.ValidateConfiguration(); err != nil {
		return nil, err
	}

	// Work on a private copy so the caller's client and transport stay untouched.
	client := *d.httpClient
	if d.timeout > 0 {
		client.Timeout = d.timeout
	}
	if err := d.sslValidation.apply(&client); err != nil {
		return nil, &ApiError{Kind: ConfigurationFailure, Message: "invalid ssl validation", Cause: err, Timestamp: time.Now()}
	}
	d.httpClient = &client

	if d.logger == nil {
		d.logger = defaultLogger(d.logLevel)
	}
	d.logger = NewLeveledLogger(d.logger, d.logLevel)
	d.userAgentValue = d.userAgent.Value()
	d.chain = d.buildChain()

	return d, nil
}

// BaseURL returns the backend base URL.
func (d *Dispatcher) BaseURL() string {
	return d.baseURL
}

// Metrics returns the collector, or nil when metrics are disabled.
func (d *Dispatcher) Metrics() *MetricsCollector {
	return d.metrics
}

// CircuitBreaker returns the breaker, or nil when none is configured.
func (d *Dispatcher) CircuitBreaker() *CircuitBreaker {
	return d.circuitBreaker
}

// buildChain wraps the HTTP client in the configured middleware. The first
// middleware is outermost; the rate limiter and then the circuit breaker sit
// closest to the network.
func (d *Dispatcher) buildChain() RoundTripper {
	middleware := append([]Middleware(nil), d.middleware...)
	if d.rateLimiter != nil {
		middleware = append(middleware, d.rateLimiter.middleware(d.logger))
	}
	if d.circuitBreaker != nil {
		middleware = append(middleware, d.circuitBreaker.middleware(d.metrics, d.logger))
	}

	current := RoundTripper(RoundTripperFunc(d.httpClient.Do))
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return mw(r, next)
		})
	}
	return current
}

// exchange POSTs body and reads the whole response. Only a transport failure
// is returned as an error; any HTTP status is a successful exchange.
func (d *Dispatcher) exchange(ctx context.Context, url string, header http.Header, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header = header

	resp, err := d.chain.RoundTrip(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// resolveAuth returns the authentication header for the endpoint mode, or
// nil for unauthenticated endpoints.
func (d *Dispatcher) resolveAuth(ctx context.Context, info *requestInfo, auth Authentication, body []byte) (*Header, *ApiError) {
	switch info.mode {
	case AuthNone:
		return nil, nil

	case AuthSigned:
		if d.signer == nil {
			return nil, info.fail(ConfigurationFailure, "signed endpoint requires a signer", ErrNoSigner)
		}
		h, err := d.signer.Sign(ctx, auth, http.MethodPost, info.resourceID, body)
		if err != nil {
			return nil, info.authFailure("failed to sign request", err)
		}
		return &h, nil

	case AuthTokenSigned:
		if d.tokens == nil {
			return nil, info.fail(ConfigurationFailure, "token endpoint requires a token provider", ErrNoTokenProvider)
		}
		tok, err := d.tokens.Token(ctx, info.tokenName)
		if err != nil {
			return nil, info.authFailure(fmt.Sprintf("failed to resolve token %q", info.tokenName), err)
		}
		h := tok.Header()
		return &h, nil

	default:
		return nil, info.fail(ConfigurationFailure, "unknown authentication mode", fmt.Errorf("auth mode %d", info.mode))
	}
}

// requestInfo is the call-local context shared by the pipeline stages.
type requestInfo struct {
	id         string
	url        string
	endpoint   string
	path       string
	mode       AuthMode
	resourceID string
	tokenName  string
	start      time.Time
}

func (d *Dispatcher) newRequestInfo(path string, mode AuthMode, resourceID, tokenName, label string) *requestInfo {
	id := ""
	if d.requestIDGen != nil {
		id = d.requestIDGen()
	}
	return &requestInfo{
		id:         id,
		url:        JoinURL(d.baseURL, path),
		endpoint:   label,
		path:       path,
		mode:       mode,
		resourceID: resourceID,
		tokenName:  tokenName,
		start:      time.Now(),
	}
}

// enrich returns a copy of e carrying the request context.
func (ri *requestInfo) enrich(e *ApiError) *ApiError {
	cp := *e
	if cp.RequestID == "" {
		cp.RequestID = ri.id
	}
	cp.Method = http.MethodPost
	if cp.URL == "" {
		cp.URL = ri.url
	}
	if cp.Endpoint == "" {
		cp.Endpoint = ri.endpoint
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	cp.Duration = time.Since(ri.start)
	return &cp
}

func (ri *requestInfo) fail(kind ErrorKind, msg string, cause error) *ApiError {
	return ri.enrich(&ApiError{Kind: kind, Message: msg, Cause: cause})
}

// authFailure wraps a signer or token failure. A backend code reported while
// acquiring a token is kept.
func (ri *requestInfo) authFailure(msg string, cause error) *ApiError {
	apiErr := &ApiError{Kind: AuthResolutionFailure, Message: msg, Cause: cause}
	if inner, ok := AsApiError(cause); ok {
		apiErr.ErrorCode = inner.ErrorCode
		apiErr.StatusCode = inner.StatusCode
		apiErr.Response = inner.Response
	}
	return ri.enrich(apiErr)
}

func (d *Dispatcher) begin(ri *requestInfo) {
	d.metrics.RecordRequestStart(ri.path)
	d.logger.Debug("Starting request", "requestID", ri.id, "url", ri.url, "auth", ri.mode.String())
}

func (d *Dispatcher) finish(ri *requestInfo, statusCode int, apiErr *ApiError) {
	duration := time.Since(ri.start)
	d.metrics.RecordRequestEnd(ri.path)

	if apiErr == nil {
		d.metrics.RecordRequest(ri.path, ri.mode, "success", statusCode, duration)
		d.logger.Debug("Request completed", "requestID", ri.id, "url", ri.url, "duration", duration)
		return
	}

	d.metrics.RecordRequest(ri.path, ri.mode, string(apiErr.Kind), statusCode, duration)
	d.metrics.RecordError(apiErr.Kind, ri.path)
	d.logger.Error("Request failed",
		"requestID", ri.id,
		"url", ri.url,
		"kind", string(apiErr.Kind),
		"status", apiErr.StatusCode,
		"code", string(apiErr.ErrorCode),
		"error", apiErr.Cause,
	)
}

func (d *Dispatcher) effectivePolicy(opts CallOptions) EncryptionPolicy {
	if opts.EncryptionPolicy != nil {
		return *opts.EncryptionPolicy
	}
	return d.encryptionPolicy
}
