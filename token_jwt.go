package networking

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenCreatePath is the backend path tokens are issued on.
const DefaultTokenCreatePath = "/api/token/create"

// DefaultTokenResourceID is the resource ID token creation is signed for.
const DefaultTokenResourceID = "/pa/token/create"

var errEmptyToken = errors.New("networking: backend issued an empty token")

// TokenFromJWT builds a Token sent as "<headerKey>: <scheme> <raw>". The expiry
// is read from the exp claim without verifying the signature; verifying is the
// backend's job. A JWT without exp yields a token that never expires.
func TokenFromJWT(name, headerKey, scheme, raw string) (*Token, error) {
	if raw == "" {
		return nil, errEmptyToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse token %q: %w", name, err)
	}

	value := raw
	if scheme != "" {
		value = scheme + " " + raw
	}
	tok := &Token{
		Name:        name,
		HeaderKey:   headerKey,
		HeaderValue: value,
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok, nil
}

// TokenCreateRequest asks the backend for a named token.
type TokenCreateRequest struct {
	TokenName string `json:"tokenName"`
}

// TokenCreateResponse carries the issued token as a JWT.
type TokenCreateResponse struct {
	TokenID string `json:"tokenId"`
	Token   string `json:"token"`
}

// HTTPTokenIssuer acquires tokens from the backend with a possession-signed
// request sent through its own Dispatcher. That dispatcher must not resolve
// tokens through the TokenManager it serves.
type HTTPTokenIssuer struct {
	dispatcher *Dispatcher
	endpoint   Endpoint[ObjectRequest[TokenCreateRequest], ObjectResponse[TokenCreateResponse]]
}

// NewHTTPTokenIssuer creates an issuer posting to path, signed for
// resourceID. Empty values fall back to DefaultTokenCreatePath and
// DefaultTokenResourceID.
func NewHTTPTokenIssuer(d *Dispatcher, path, resourceID string) (*HTTPTokenIssuer, error) {
	if d == nil {
		return nil, errors.New("networking: token issuer requires a dispatcher")
	}
	if path == "" {
		path = DefaultTokenCreatePath
	}
	if resourceID == "" {
		resourceID = DefaultTokenResourceID
	}
	return &HTTPTokenIssuer{
		dispatcher: d,
		endpoint:   NewSignedEndpoint[ObjectRequest[TokenCreateRequest], ObjectResponse[TokenCreateResponse]](path, resourceID),
	}, nil
}

// RequestToken implements TokenIssuer.
func (i *HTTPTokenIssuer) RequestToken(ctx context.Context, name string) (*Token, error) {
	resp, err := Post(ctx, i.dispatcher, i.endpoint, NewObjectRequest(TokenCreateRequest{TokenName: name}), CallOptions{
		Authentication: PossessionAuth(),
	})
	if err != nil {
		return nil, err
	}
	return TokenFromJWT(name, "Authorization", "Bearer", resp.ResponseObject.Token)
}
