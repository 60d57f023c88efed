package networking

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// SignatureHeader is the header carrying a Dilithium3 request signature.
const SignatureHeader = "X-Signature"

// DilithiumSigner signs sha3-256 digests of the request with a Dilithium3
// key. Only the possession factor is expressed; knowledge and biometry are
// rejected.
type DilithiumSigner struct {
	keyID      string
	privateKey *mode3.PrivateKey
	rand       io.Reader
}

// NewDilithiumSigner returns a signer for privateKey, identified to the
// backend as keyID.
func NewDilithiumSigner(keyID string, privateKey *mode3.PrivateKey) (*DilithiumSigner, error) {
	if privateKey == nil {
		return nil, errors.New("dilithium signer: missing private key")
	}
	return &DilithiumSigner{keyID: keyID, privateKey: privateKey, rand: rand.Reader}, nil
}

// Sign implements Signer.
func (s *DilithiumSigner) Sign(_ context.Context, auth Authentication, method, resourceID string, body []byte) (Header, error) {
	if auth.Password != "" || auth.Biometry {
		return Header{}, fmt.Errorf("dilithium signer: unsupported signature type %q", auth.SignatureType())
	}

	nonce := make([]byte, 16)
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return Header{}, fmt.Errorf("dilithium signer: nonce: %w", err)
	}
	encodedNonce := base64.StdEncoding.EncodeToString(nonce)

	digest := sha3.Sum256(signatureBaseString(method, resourceID, encodedNonce, body))
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.privateKey, digest[:], sig)

	value := formatAuthorization("Dilithium3", []headerParam{
		{"key_id", s.keyID},
		{"nonce", encodedNonce},
		{"signature", base64.StdEncoding.EncodeToString(sig)},
	})
	return Header{Key: SignatureHeader, Value: value}, nil
}

// VerifyDilithium checks a header produced by DilithiumSigner.Sign.
func VerifyDilithium(publicKey *mode3.PublicKey, header, method, resourceID string, body []byte) error {
	params, err := ParseAuthorization("Dilithium3", header)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil || len(sig) != mode3.SignatureSize {
		return fmt.Errorf("%w: invalid signature encoding", errMalformedHeader)
	}
	digest := sha3.Sum256(signatureBaseString(method, resourceID, params["nonce"], body))
	if !mode3.Verify(publicKey, digest[:], sig) {
		return errSignatureMismatch
	}
	return nil
}

// ParseDilithiumPublicKey decodes a packed Dilithium3 public key.
func ParseDilithiumPublicKey(raw []byte) (*mode3.PublicKey, error) {
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("invalid dilithium3 public key: %w", err)
	}
	return &pk, nil
}
