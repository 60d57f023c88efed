package networking

import (
	"encoding/json"
	"errors"
	"time"
)

// Cryptogram is the output of one Encrypt call. All fields are base64.
type Cryptogram struct {
	EphemeralPublicKey string
	EncryptedData      string
	Mac                string
	Nonce              string
}

// RequestEnvelope is the wire shape of an encrypted request body.
type RequestEnvelope struct {
	EphemeralPublicKey string `json:"ephemeralPublicKey,omitempty"`
	EncryptedData      string `json:"encryptedData"`
	Mac                string `json:"mac"`
	Nonce              string `json:"nonce,omitempty"`
}

// ResponseEnvelope is the wire shape of an encrypted response body.
type ResponseEnvelope struct {
	EncryptedData string `json:"encryptedData"`
	Mac           string `json:"mac"`
}

// EncryptorMetadata is the header that identifies the encryption context to
// the backend.
type EncryptorMetadata struct {
	HeaderKey   string
	HeaderValue string
}

// Encryptor is the end-to-end encryption capability used for one call.
//
// Encrypt returns a nil cryptogram and nil error to decline, in which case
// the request goes out in plain text (unless the policy requires encryption).
// The response of a declined request is decoded as plain text; Decrypt is
// called only for requests that went out encrypted.
type Encryptor interface {
	Encrypt(plain []byte) (*Cryptogram, error)
	Decrypt(encryptedData, mac string) ([]byte, error)
	Metadata() EncryptorMetadata
}

// WrapMode tells whether Wrap produced an encrypted envelope or left the
// body in plain text.
type WrapMode int

const (
	WrapPlain WrapMode = iota
	WrapEncrypted
)

func (m WrapMode) String() string {
	if m == WrapEncrypted {
		return "encrypted"
	}
	return "plain"
}

// WrapResult is the body to send plus how it was produced.
type WrapResult struct {
	Body []byte
	Mode WrapMode
}

// Encrypted reports whether Body is an encrypted envelope.
func (r WrapResult) Encrypted() bool {
	return r.Mode == WrapEncrypted
}

// EncryptionPolicy decides what happens when an encryptor declines.
type EncryptionPolicy int

const (
	// EncryptionOptional sends the plain body when the encryptor declines.
	EncryptionOptional EncryptionPolicy = iota
	// EncryptionRequired fails the call when the encryptor declines.
	EncryptionRequired
)

func (p EncryptionPolicy) String() string {
	if p == EncryptionRequired {
		return "required"
	}
	return "optional"
}

// Wrap encrypts plain into a RequestEnvelope. A nil encryptor, or one that
// declines, yields the plain bytes unchanged with Mode WrapPlain. An Encrypt
// error yields an AuthResolutionFailure with ERR_ENCRYPTION.
func Wrap(enc Encryptor, plain []byte) (WrapResult, error) {
	if enc == nil {
		return WrapResult{Body: plain, Mode: WrapPlain}, nil
	}

	cryptogram, err := enc.Encrypt(plain)
	if err != nil {
		return WrapResult{}, encryptionError("failed to encrypt request", err)
	}
	if cryptogram == nil {
		return WrapResult{Body: plain, Mode: WrapPlain}, nil
	}

	body, err := json.Marshal(RequestEnvelope{
		EphemeralPublicKey: cryptogram.EphemeralPublicKey,
		EncryptedData:      cryptogram.EncryptedData,
		Mac:                cryptogram.Mac,
		Nonce:              cryptogram.Nonce,
	})
	if err != nil {
		return WrapResult{}, encryptionError("failed to encode request envelope", err)
	}
	return WrapResult{Body: body, Mode: WrapEncrypted}, nil
}

// Unwrap parses a ResponseEnvelope from body and decrypts it. Every failure
// is a DecodeFailure.
func Unwrap(enc Encryptor, body []byte) ([]byte, error) {
	if enc == nil {
		return nil, decodeError("no encryptor to unwrap response", errors.New("nil encryptor"))
	}

	var env ResponseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeError("failed to decode response envelope", err)
	}
	if env.EncryptedData == "" || env.Mac == "" {
		return nil, decodeError("response envelope is incomplete", errors.New("missing encryptedData or mac"))
	}

	plain, err := enc.Decrypt(env.EncryptedData, env.Mac)
	if err != nil {
		return nil, decodeError("failed to decrypt response", err)
	}
	return plain, nil
}

func encryptionError(msg string, cause error) *ApiError {
	return &ApiError{
		Kind:      AuthResolutionFailure,
		ErrorCode: ErrorCodeEncryption,
		Message:   msg,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func decodeError(msg string, cause error) *ApiError {
	return &ApiError{
		Kind:      DecodeFailure,
		Message:   msg,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}
