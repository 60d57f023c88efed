package networking

import "fmt"

// AuthMode selects how a request to an endpoint is authenticated.
type AuthMode int

const (
	// AuthNone sends the request without an authentication header.
	AuthNone AuthMode = iota
	// AuthSigned signs the request body with the configured Signer.
	AuthSigned
	// AuthTokenSigned attaches a named token resolved through the TokenProvider.
	AuthTokenSigned
)

func (m AuthMode) String() string {
	switch m {
	case AuthNone:
		return "none"
	case AuthSigned:
		return "signed"
	case AuthTokenSigned:
		return "token"
	default:
		return fmt.Sprintf("AuthMode(%d)", int(m))
	}
}

// Endpoint describes one backend operation: where to POST, how to
// authenticate, and the request and response types. Values are immutable and
// safe to share between goroutines.
type Endpoint[Req, Resp any] struct {
	path       string
	mode       AuthMode
	resourceID string
	tokenName  string
}

// NewEndpoint creates an endpoint that sends unauthenticated requests.
func NewEndpoint[Req, Resp any](path string) Endpoint[Req, Resp] {
	return Endpoint[Req, Resp]{path: path, mode: AuthNone}
}

// NewSignedEndpoint creates an endpoint whose requests are signed for resourceID.
func NewSignedEndpoint[Req, Resp any](path, resourceID string) Endpoint[Req, Resp] {
	return Endpoint[Req, Resp]{path: path, mode: AuthSigned, resourceID: resourceID}
}

// NewTokenEndpoint creates an endpoint authenticated with the token called tokenName.
func NewTokenEndpoint[Req, Resp any](path, tokenName string) Endpoint[Req, Resp] {
	return Endpoint[Req, Resp]{path: path, mode: AuthTokenSigned, tokenName: tokenName}
}

func (e Endpoint[Req, Resp]) Path() string       { return e.path }
func (e Endpoint[Req, Resp]) Auth() AuthMode     { return e.mode }
func (e Endpoint[Req, Resp]) ResourceID() string { return e.resourceID }
func (e Endpoint[Req, Resp]) TokenName() string  { return e.tokenName }

func (e Endpoint[Req, Resp]) String() string {
	switch e.mode {
	case AuthSigned:
		return fmt.Sprintf("%s (signed %s)", e.path, e.resourceID)
	case AuthTokenSigned:
		return fmt.Sprintf("%s (token %s)", e.path, e.tokenName)
	default:
		return e.path
	}
}

// sendsEncryptionMetadata reports whether an encrypted request to an endpoint
// in this mode carries the encryptor metadata header. Signed requests carry
// the equivalent context in the signature.
func (m AuthMode) sendsEncryptionMetadata() bool {
	return m == AuthNone || m == AuthTokenSigned
}
