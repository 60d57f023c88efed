package networking

import (
	"net/http"
	"strings"
)

// JoinURL joins base and path with exactly one slash between them, whatever
// slashes either side carries.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// buildHeaders assembles a fresh header set for one call.
func (d *Dispatcher) buildHeaders(auth *Header, metadata *EncryptorMetadata, extra map[string]string) http.Header {
	h := make(http.Header, 6+len(extra))
	h.Set("Content-Type", "application/json; charset=UTF-8")
	h.Set("Accept", "application/json")
	h.Set("Accept-Language", d.acceptLanguage)
	if d.userAgentValue != "" {
		h.Set("User-Agent", d.userAgentValue)
	}
	if auth != nil {
		h.Set(auth.Key, auth.Value)
	}
	if metadata != nil {
		h.Set(metadata.HeaderKey, metadata.HeaderValue)
	}
	for k, v := range extra {
		h.Set(k, v)
	}
	return h
}
