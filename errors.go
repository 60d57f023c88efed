package networking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrInvalidBaseURL is returned when the dispatcher base URL is empty or not absolute
	ErrInvalidBaseURL = errors.New("networking: invalid base url")

	// ErrNoSigner is returned when a signed endpoint is called on a dispatcher without a signer
	ErrNoSigner = errors.New("networking: no signer configured")

	// ErrNoTokenProvider is returned when a token endpoint is called without a token provider
	ErrNoTokenProvider = errors.New("networking: no token provider configured")

	// ErrEncryptionDeclined is returned when encryption is required but the encryptor declined
	ErrEncryptionDeclined = errors.New("networking: encryption declined")

	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("networking: circuit open")

	// ErrTrailingData is returned by a strict codec when the body holds more than one JSON document
	ErrTrailingData = errors.New("networking: trailing data after json document")
)

// ErrorKind classifies the cause of an ApiError.
type ErrorKind string

const (
	// TransportFailure is a network or I/O failure; no HTTP response was received.
	TransportFailure ErrorKind = "TransportFailure"
	// HTTPFailure is a non-2xx response, or a 2xx response reporting status ERROR.
	HTTPFailure ErrorKind = "HTTPFailure"
	// DecodeFailure is a body that could not be unwrapped or decoded.
	DecodeFailure ErrorKind = "DecodeFailure"
	// AuthResolutionFailure means signing, token acquisition or encryption failed
	// before the request was sent.
	AuthResolutionFailure ErrorKind = "AuthResolutionFailure"
	// ConfigurationFailure means the dispatcher or call was misconfigured.
	ConfigurationFailure ErrorKind = "ConfigurationFailure"
	// UnknownFailure is anything that could not be classified.
	UnknownFailure ErrorKind = "UnknownFailure"
)

// Kind sentinels for errors.Is. An *ApiError matches the sentinel of its Kind.
// They are shared values and must be treated as read-only.
var (
	ErrKindTransport      = &ApiError{Kind: TransportFailure}
	ErrKindHTTP           = &ApiError{Kind: HTTPFailure}
	ErrKindDecode         = &ApiError{Kind: DecodeFailure}
	ErrKindAuthResolution = &ApiError{Kind: AuthResolutionFailure}
	ErrKindConfiguration  = &ApiError{Kind: ConfigurationFailure}
	ErrKindUnknown        = &ApiError{Kind: UnknownFailure}
)

// ApiError is the single failure value delivered for a failed call. It is
// built once per call and never mutated after delivery.
type ApiError struct {
	Kind       ErrorKind
	StatusCode int
	// ErrorCode is empty when the backend did not report a code or the code
	// is not in the registry.
	ErrorCode ErrorCode
	// Response is the parsed error body, when one could be decoded.
	Response *ErrorResponseObject
	Message  string
	Cause    error

	RequestID string
	Method    string
	URL       string
	Endpoint  string
	Timestamp time.Time
	Duration  time.Duration
}

// Error implements error interface.
func (e *ApiError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.ErrorCode != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.ErrorCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ApiError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *ApiError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ApiError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// HasErrorCode reports whether the backend reported a recognised code.
func (e *ApiError) HasErrorCode() bool {
	return e != nil && e.ErrorCode != ""
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ApiError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.ErrorCode != "" {
		info += fmt.Sprintf("Error Code: %s\n", e.ErrorCode)
	}
	if e.Response != nil && e.Response.Message != "" {
		info += fmt.Sprintf("Backend Message: %s\n", e.Response.Message)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// HTTPError is a non-2xx response as seen by the transport, before the body
// has been interpreted.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// ErrorResponseError is a cause that already carries a backend error body,
// e.g. a status ERROR payload received with a 2xx status.
type ErrorResponseError struct {
	StatusCode int
	Object     ErrorResponseObject
}

func (e *ErrorResponseError) Error() string {
	if e.Object.Message != "" {
		return fmt.Sprintf("backend error %s: %s", e.Object.Code, e.Object.Message)
	}
	return fmt.Sprintf("backend error %s", e.Object.Code)
}

// ClassifyError maps any failure cause to an *ApiError. It is total: nil and
// unrecognised causes yield UnknownFailure with no error code. An *ApiError
// anywhere in the chain is returned as is.
func ClassifyError(err error) *ApiError {
	if err == nil {
		return &ApiError{Kind: UnknownFailure, Message: "unknown error", Timestamp: time.Now()}
	}

	var apiErr *ApiError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return newHTTPFailure(httpErr.StatusCode, httpErr.Body, err)
	}

	var respErr *ErrorResponseError
	if errors.As(err, &respErr) {
		obj := respErr.Object
		code, _ := ParseErrorCode(obj.Code)
		return &ApiError{
			Kind:       HTTPFailure,
			StatusCode: respErr.StatusCode,
			ErrorCode:  code,
			Response:   &obj,
			Message:    "backend reported an error",
			Cause:      err,
			Timestamp:  time.Now(),
		}
	}

	if isTransportError(err) {
		return &ApiError{Kind: TransportFailure, Message: "network request failed", Cause: err, Timestamp: time.Now()}
	}

	if isDecodeError(err) {
		return &ApiError{Kind: DecodeFailure, Message: "failed to decode response", Cause: err, Timestamp: time.Now()}
	}

	return &ApiError{Kind: UnknownFailure, Message: "unexpected error", Cause: err, Timestamp: time.Now()}
}

// newHTTPFailure builds an HTTPFailure from a non-2xx body. When the body is
// not a valid error response only the status code is kept.
func newHTTPFailure(statusCode int, body []byte, cause error) *ApiError {
	apiErr := &ApiError{
		Kind:       HTTPFailure,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("request failed with status %d", statusCode),
		Cause:      cause,
		Timestamp:  time.Now(),
	}

	var resp ErrorResponse
	if len(body) == 0 || json.Unmarshal(body, &resp) != nil {
		return apiErr
	}
	obj := resp.ResponseObject
	apiErr.Response = &obj
	apiErr.ErrorCode, _ = ParseErrorCode(obj.Code)
	return apiErr
}

func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, ErrTrailingData):
		return true
	case errors.Is(err, ErrInvalidStatus):
		return true
	}
	return false
}

// AsApiError returns the *ApiError in err's chain, if any.
func AsApiError(err error) (*ApiError, bool) {
	var apiErr *ApiError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr, true
	}
	return nil, false
}

// IsErrorCode reports whether err is an ApiError carrying code.
func IsErrorCode(err error, code ErrorCode) bool {
	apiErr, ok := AsApiError(err)
	return ok && apiErr.ErrorCode == code
}

// IsTransient determines if an error represents a failure that might succeed
// when the caller retries. The dispatcher itself never retries.
// Returns true for transport failures, 5xx responses, 429 and rate limit codes.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}

	apiErr, ok := AsApiError(err)
	if !ok {
		return false
	}
	switch apiErr.Kind {
	case TransportFailure:
		return !errors.Is(apiErr.Cause, context.Canceled)
	case HTTPFailure:
		if apiErr.ErrorCode == ErrorCodeRateLimitExceeded || apiErr.ErrorCode == ErrorCodeTooManyRequests {
			return true
		}
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	default:
		return false
	}
}
