package networking

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"
)

// Middleware represents a middleware function
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// DefaultLogBodyLimit caps the body preview logged by LoggingMiddleware.
const DefaultLogBodyLimit = 10 * 1024

var redactedHeaders = func() map[string]bool {
	m := make(map[string]bool)
	for _, key := range []string{"Authorization", "Cookie", AuthorizationHeader, SignatureHeader, "X-PowerAuth-Token"} {
		m[http.CanonicalHeaderKey(key)] = true
	}
	return m
}()

// LoggingMiddleware logs every request and response at debug level, with
// authentication headers redacted and bodies cut at maxBody bytes. A
// non-positive maxBody uses DefaultLogBodyLimit.
func LoggingMiddleware(logger Logger, maxBody int) Middleware {
	if maxBody <= 0 {
		maxBody = DefaultLogBodyLimit
	}
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		start := time.Now()
		logger.Debug("HTTP request",
			"method", req.Method,
			"url", req.URL.String(),
			"headers", redactHeaders(req.Header),
			"body", peekRequestBody(req, maxBody),
		)

		resp, err := next.RoundTrip(req)
		if err != nil {
			logger.Debug("HTTP request failed", "url", req.URL.String(), "error", err, "duration", time.Since(start))
			return nil, err
		}

		logger.Debug("HTTP response",
			"url", req.URL.String(),
			"status", resp.StatusCode,
			"headers", redactHeaders(resp.Header),
			"body", peekResponseBody(resp, maxBody),
			"duration", time.Since(start),
		)
		return resp, nil
	}
}

func redactHeaders(h http.Header) string {
	var b strings.Builder
	first := true
	for key, values := range h {
		if !first {
			b.WriteString("; ")
		}
		first = false
		b.WriteString(key)
		b.WriteString(": ")
		if redactedHeaders[http.CanonicalHeaderKey(key)] {
			b.WriteString("<redacted>")
			continue
		}
		b.WriteString(strings.Join(values, ", "))
	}
	return b.String()
}

func peekRequestBody(req *http.Request, limit int) string {
	if req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return ""
	}
	defer body.Close()
	return preview(body, limit)
}

// peekResponseBody reads up to limit bytes and puts them back in front of
// the unread remainder so the caller still sees the full body.
func peekResponseBody(resp *http.Response, limit int) string {
	if resp.Body == nil {
		return ""
	}
	head := make([]byte, limit+1)
	n, _ := io.ReadFull(resp.Body, head)
	head = head[:n]
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), resp.Body), resp.Body}
	return previewBytes(head, limit)
}

func preview(r io.Reader, limit int) string {
	head, _ := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	return previewBytes(head, limit)
}

func previewBytes(b []byte, limit int) string {
	if len(b) > limit {
		return string(b[:limit]) + "...(truncated)"
	}
	return string(b)
}
