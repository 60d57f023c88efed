package networking

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedJWT(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return raw
}

func TestTokenFromJWT(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signedJWT(t, jwt.RegisteredClaims{Subject: "t", ExpiresAt: jwt.NewNumericDate(exp)})

	tok, err := TokenFromJWT("t", "Authorization", "Bearer", raw)
	require.NoError(t, err)

	assert.Equal(t, "t", tok.Name)
	assert.Equal(t, "Authorization", tok.HeaderKey)
	assert.Equal(t, "Bearer "+raw, tok.HeaderValue)
	assert.True(t, exp.Equal(tok.ExpiresAt))
}

func TestTokenFromJWTWithoutExpiry(t *testing.T) {
	raw := signedJWT(t, jwt.RegisteredClaims{Subject: "t"})

	tok, err := TokenFromJWT("t", "X-Token", "", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, tok.HeaderValue)
	assert.True(t, tok.ExpiresAt.IsZero())
}

func TestTokenFromJWTErrors(t *testing.T) {
	_, err := TokenFromJWT("t", "Authorization", "Bearer", "")
	assert.True(t, errors.Is(err, errEmptyToken))

	_, err = TokenFromJWT("t", "Authorization", "Bearer", "not.a.jwt")
	assert.Error(t, err)
}

func TestNewHTTPTokenIssuerDefaults(t *testing.T) {
	_, err := NewHTTPTokenIssuer(nil, "", "")
	assert.Error(t, err)

	d := newTestDispatcher(t, "https://example.com")
	issuer, err := NewHTTPTokenIssuer(d, "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenCreatePath, issuer.endpoint.Path())
	assert.Equal(t, DefaultTokenResourceID, issuer.endpoint.ResourceID())
	assert.Equal(t, AuthSigned, issuer.endpoint.Auth())
}

func TestHTTPTokenIssuerRequestToken(t *testing.T) {
	raw := signedJWT(t, jwt.RegisteredClaims{Subject: "possession_universal", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))})
	backend := newTestBackend(t, reply(http.StatusOK, `{"status":"OK","responseObject":{"tokenId":"id-1","token":"`+raw+`"}}`))

	var signedFor string
	signer := SignerFunc(func(_ context.Context, auth Authentication, method, resourceID string, body []byte) (Header, error) {
		signedFor = resourceID
		return Header{Key: AuthorizationHeader, Value: "PowerAuth sig"}, nil
	})
	d := newTestDispatcher(t, backend.URL, WithSigner(signer))
	issuer, err := NewHTTPTokenIssuer(d, "", "")
	require.NoError(t, err)

	tok, err := issuer.RequestToken(context.Background(), "possession_universal")
	require.NoError(t, err)

	assert.Equal(t, "Bearer "+raw, tok.HeaderValue)
	assert.Equal(t, DefaultTokenResourceID, signedFor)
	_, body := backend.last()
	assert.JSONEq(t, `{"requestObject":{"tokenName":"possession_universal"}}`, string(body))
}

func TestHTTPTokenIssuerBackendError(t *testing.T) {
	backend := newTestBackend(t, reply(http.StatusBadRequest, `{"status":"ERROR","responseObject":{"code":"ERR_TOKEN","message":"no"}}`))
	signer := SignerFunc(func(context.Context, Authentication, string, string, []byte) (Header, error) {
		return Header{Key: AuthorizationHeader, Value: "sig"}, nil
	})
	d := newTestDispatcher(t, backend.URL, WithSigner(signer))
	issuer, err := NewHTTPTokenIssuer(d, "", "")
	require.NoError(t, err)

	_, err = NewTokenManager(issuer).Token(context.Background(), "t")
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodeToken))
}
