package networking

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// AuthorizationHeader is the header carrying a request signature.
const AuthorizationHeader = "X-PowerAuth-Authorization"

var (
	errSignatureMismatch = errors.New("signature mismatch")
	errMalformedHeader   = errors.New("malformed authorization header")
)

// Header is a single header key/value pair.
type Header struct {
	Key   string
	Value string
}

// Authentication selects the factors a Signer uses. It is opaque to the
// dispatcher and passed through to the Signer unchanged.
type Authentication struct {
	Possession bool
	// Password is the knowledge factor; empty when not used.
	Password string
	Biometry bool
}

// PossessionAuth returns possession-only authentication.
func PossessionAuth() Authentication {
	return Authentication{Possession: true}
}

// SignatureType names the combination of factors, e.g. "possession_knowledge".
func (a Authentication) SignatureType() string {
	var parts []string
	if a.Possession {
		parts = append(parts, "possession")
	}
	if a.Password != "" {
		parts = append(parts, "knowledge")
	}
	if a.Biometry {
		parts = append(parts, "biometry")
	}
	return strings.Join(parts, "_")
}

// Signer computes the authentication header for a signed request. Signing is
// local computation; implementations must not block on I/O.
type Signer interface {
	Sign(ctx context.Context, auth Authentication, method, resourceID string, body []byte) (Header, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, auth Authentication, method, resourceID string, body []byte) (Header, error)

// Sign implements Signer.
func (f SignerFunc) Sign(ctx context.Context, auth Authentication, method, resourceID string, body []byte) (Header, error) {
	return f(ctx, auth, method, resourceID, body)
}

// HMACSignerConfig configures an HMACSigner.
type HMACSignerConfig struct {
	ActivationID      string
	ApplicationKey    string
	ApplicationSecret string
	PossessionKey     []byte
	KnowledgeSalt     []byte
	BiometryKey       []byte
	// Rand supplies signature nonces; defaults to crypto/rand.
	Rand io.Reader
}

// HMACSigner signs requests with HMAC-SHA256 over the method, resource ID,
// a fresh nonce and the body.
type HMACSigner struct {
	config HMACSignerConfig
}

// NewHMACSigner validates config and returns a signer.
func NewHMACSigner(config HMACSignerConfig) (*HMACSigner, error) {
	if config.ActivationID == "" {
		return nil, errors.New("hmac signer: missing activation id")
	}
	if len(config.PossessionKey) == 0 {
		return nil, errors.New("hmac signer: missing possession key")
	}
	if config.Rand == nil {
		config.Rand = rand.Reader
	}
	return &HMACSigner{config: config}, nil
}

// Sign implements Signer.
func (s *HMACSigner) Sign(_ context.Context, auth Authentication, method, resourceID string, body []byte) (Header, error) {
	key, err := s.factorKey(auth)
	if err != nil {
		return Header{}, err
	}

	nonce := make([]byte, 16)
	if _, err := io.ReadFull(s.config.Rand, nonce); err != nil {
		return Header{}, fmt.Errorf("hmac signer: nonce: %w", err)
	}
	encodedNonce := base64.StdEncoding.EncodeToString(nonce)

	signature := s.compute(key, method, resourceID, encodedNonce, body)
	value := formatAuthorization("PowerAuth", []headerParam{
		{"pa_activation_id", s.config.ActivationID},
		{"pa_application_key", s.config.ApplicationKey},
		{"pa_nonce", encodedNonce},
		{"pa_signature_type", auth.SignatureType()},
		{"pa_signature", signature},
		{"pa_version", "3.1"},
	})
	return Header{Key: AuthorizationHeader, Value: value}, nil
}

// Verify checks a header produced by Sign against the request it claims to
// sign. The knowledge factor is taken from auth.
func (s *HMACSigner) Verify(header string, auth Authentication, method, resourceID string, body []byte) error {
	params, err := ParseAuthorization("PowerAuth", header)
	if err != nil {
		return err
	}
	if params["pa_activation_id"] != s.config.ActivationID {
		return fmt.Errorf("%w: unknown activation", errSignatureMismatch)
	}
	if params["pa_signature_type"] != auth.SignatureType() {
		return fmt.Errorf("%w: signature type %q", errSignatureMismatch, params["pa_signature_type"])
	}
	key, err := s.factorKey(auth)
	if err != nil {
		return err
	}
	expected := s.compute(key, method, resourceID, params["pa_nonce"], body)
	if !hmac.Equal([]byte(expected), []byte(params["pa_signature"])) {
		return errSignatureMismatch
	}
	return nil
}

func (s *HMACSigner) factorKey(auth Authentication) ([]byte, error) {
	if auth.SignatureType() == "" {
		return nil, errors.New("hmac signer: no authentication factor selected")
	}
	h := sha256.New()
	if auth.Possession {
		h.Write(s.config.PossessionKey)
	}
	if auth.Password != "" {
		h.Write(s.config.KnowledgeSalt)
		h.Write([]byte(auth.Password))
	}
	if auth.Biometry {
		if len(s.config.BiometryKey) == 0 {
			return nil, errors.New("hmac signer: biometry key not available")
		}
		h.Write(s.config.BiometryKey)
	}
	return h.Sum(nil), nil
}

func (s *HMACSigner) compute(key []byte, method, resourceID, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(signatureBaseString(method, resourceID, nonce, body))
	mac.Write([]byte("&" + s.config.ApplicationSecret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signatureBaseString normalizes the signed request data.
func signatureBaseString(method, resourceID, nonce string, body []byte) []byte {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('&')
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(resourceID)))
	b.WriteByte('&')
	b.WriteString(nonce)
	b.WriteByte('&')
	b.WriteString(base64.StdEncoding.EncodeToString(body))
	return []byte(b.String())
}

type headerParam struct {
	key   string
	value string
}

func formatAuthorization(scheme string, params []headerParam) string {
	var b strings.Builder
	b.WriteString(scheme)
	for i, p := range params {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `%s="%s"`, p.key, p.value)
	}
	return b.String()
}

// ParseAuthorization splits a `Scheme k="v", k2="v2"` header into its
// parameters.
func ParseAuthorization(scheme, header string) (map[string]string, error) {
	rest, ok := strings.CutPrefix(header, scheme+" ")
	if !ok {
		return nil, fmt.Errorf("%w: expected scheme %s", errMalformedHeader, scheme)
	}
	params := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", errMalformedHeader, part)
		}
		value = strings.TrimSuffix(strings.TrimPrefix(value, `"`), `"`)
		params[key] = value
	}
	return params, nil
}
