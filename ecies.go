package networking

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// EncryptionHeader is the header carrying EncryptorMetadata for ECIES.
const EncryptionHeader = "X-PowerAuth-Encryption"

const (
	eciesNonceSize  = 16
	eciesEncKeySize = 16
	eciesMacKeySize = 32
	eciesIVKeySize  = 16

	eciesLabelRequest  = "request"
	eciesLabelResponse = "response"
)

var (
	errECIESNoPendingRequest = errors.New("ecies: no request was encrypted")
	errECIESMacMismatch      = errors.New("ecies: mac mismatch")
	errECIESBadPublicKey     = errors.New("ecies: invalid public key")
)

// ECIESConfig configures an ECIESEncryptor.
type ECIESConfig struct {
	// ServerPublicKey is the backend's X25519 public key.
	ServerPublicKey []byte
	// SharedInfo binds derived keys to an application scope.
	SharedInfo     []byte
	ApplicationKey string
	ActivationID   string
	// Active reports whether a secure session is available. When it returns
	// false Encrypt declines. Nil means always active.
	Active func() bool
	Rand   io.Reader
}

// ECIESEncryptor encrypts one request and decrypts the matching response
// using X25519, HKDF-SHA256, AES-CTR and HMAC-SHA256. The response IV is
// derived from the request nonce, so an encryptor must not be shared between
// concurrent calls; create one per call.
type ECIESEncryptor struct {
	config ECIESConfig

	mu      sync.Mutex
	pending *eciesSession
}

type eciesSession struct {
	keys  eciesKeys
	nonce []byte
}

// NewECIESEncryptor validates config and returns an encryptor.
func NewECIESEncryptor(config ECIESConfig) (*ECIESEncryptor, error) {
	if len(config.ServerPublicKey) != curve25519.PointSize {
		return nil, errECIESBadPublicKey
	}
	if config.Rand == nil {
		config.Rand = rand.Reader
	}
	return &ECIESEncryptor{config: config}, nil
}

// Encrypt implements Encryptor.
func (e *ECIESEncryptor) Encrypt(plain []byte) (*Cryptogram, error) {
	if e.config.Active != nil && !e.config.Active() {
		return nil, nil
	}

	ephemeral := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(e.config.Rand, ephemeral); err != nil {
		return nil, fmt.Errorf("ecies: ephemeral key: %w", err)
	}
	ephemeralPub, err := curve25519.X25519(ephemeral, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("ecies: ephemeral public key: %w", err)
	}
	shared, err := curve25519.X25519(ephemeral, e.config.ServerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("ecies: key agreement: %w", err)
	}

	nonce := make([]byte, eciesNonceSize)
	if _, err := io.ReadFull(e.config.Rand, nonce); err != nil {
		return nil, fmt.Errorf("ecies: nonce: %w", err)
	}

	keys, err := deriveECIESKeys(shared, nonce, e.config.SharedInfo)
	if err != nil {
		return nil, err
	}
	ct, mac, err := keys.seal(eciesLabelRequest, nonce, plain)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.pending = &eciesSession{keys: keys, nonce: nonce}
	e.mu.Unlock()

	return &Cryptogram{
		EphemeralPublicKey: base64.StdEncoding.EncodeToString(ephemeralPub),
		EncryptedData:      base64.StdEncoding.EncodeToString(ct),
		Mac:                base64.StdEncoding.EncodeToString(mac),
		Nonce:              base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Decrypt implements Encryptor. It only succeeds after Encrypt.
func (e *ECIESEncryptor) Decrypt(encryptedData, mac string) ([]byte, error) {
	e.mu.Lock()
	session := e.pending
	e.mu.Unlock()
	if session == nil {
		return nil, errECIESNoPendingRequest
	}

	ct, tag, err := decodeECIESPayload(encryptedData, mac)
	if err != nil {
		return nil, err
	}
	return session.keys.open(eciesLabelResponse, session.nonce, ct, tag)
}

// Metadata implements Encryptor.
func (e *ECIESEncryptor) Metadata() EncryptorMetadata {
	value := fmt.Sprintf(`PowerAuth version="3.1", application_key="%s"`, e.config.ApplicationKey)
	if e.config.ActivationID != "" {
		value += fmt.Sprintf(`, activation_id="%s"`, e.config.ActivationID)
	}
	return EncryptorMetadata{HeaderKey: EncryptionHeader, HeaderValue: value}
}

// ECIESDecryptor is the receiving side of ECIESEncryptor. It holds the
// static private key whose public half clients encrypt to.
type ECIESDecryptor struct {
	privateKey []byte
	sharedInfo []byte
}

// NewECIESDecryptor returns a decryptor for privateKey.
func NewECIESDecryptor(privateKey, sharedInfo []byte) (*ECIESDecryptor, error) {
	if len(privateKey) != curve25519.ScalarSize {
		return nil, errors.New("ecies: invalid private key")
	}
	return &ECIESDecryptor{privateKey: privateKey, sharedInfo: sharedInfo}, nil
}

// OpenRequest decrypts a request envelope. The returned responder encrypts
// the reply so that only the original sender can read it.
func (d *ECIESDecryptor) OpenRequest(env RequestEnvelope) ([]byte, *ECIESResponder, error) {
	ephemeralPub, err := base64.StdEncoding.DecodeString(env.EphemeralPublicKey)
	if err != nil || len(ephemeralPub) != curve25519.PointSize {
		return nil, nil, errECIESBadPublicKey
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != eciesNonceSize {
		return nil, nil, errors.New("ecies: invalid nonce")
	}
	ct, tag, err := decodeECIESPayload(env.EncryptedData, env.Mac)
	if err != nil {
		return nil, nil, err
	}

	shared, err := curve25519.X25519(d.privateKey, ephemeralPub)
	if err != nil {
		return nil, nil, fmt.Errorf("ecies: key agreement: %w", err)
	}
	keys, err := deriveECIESKeys(shared, nonce, d.sharedInfo)
	if err != nil {
		return nil, nil, err
	}
	plain, err := keys.open(eciesLabelRequest, nonce, ct, tag)
	if err != nil {
		return nil, nil, err
	}
	return plain, &ECIESResponder{keys: keys, nonce: nonce}, nil
}

// ECIESResponder seals the response to a request opened by ECIESDecryptor.
type ECIESResponder struct {
	keys  eciesKeys
	nonce []byte
}

// Seal encrypts plain into a ResponseEnvelope.
func (r *ECIESResponder) Seal(plain []byte) (ResponseEnvelope, error) {
	ct, mac, err := r.keys.seal(eciesLabelResponse, r.nonce, plain)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	return ResponseEnvelope{
		EncryptedData: base64.StdEncoding.EncodeToString(ct),
		Mac:           base64.StdEncoding.EncodeToString(mac),
	}, nil
}

// GenerateECIESKeyPair returns a new X25519 key pair.
func GenerateECIESKeyPair(random io.Reader) (privateKey, publicKey []byte, err error) {
	if random == nil {
		random = rand.Reader
	}
	privateKey = make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(random, privateKey); err != nil {
		return nil, nil, err
	}
	publicKey, err = curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return privateKey, publicKey, nil
}

type eciesKeys struct {
	enc []byte
	mac []byte
	iv  []byte
}

func deriveECIESKeys(shared, nonce, info []byte) (eciesKeys, error) {
	r := hkdf.New(sha256.New, shared, nonce, info)
	buf := make([]byte, eciesEncKeySize+eciesMacKeySize+eciesIVKeySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return eciesKeys{}, fmt.Errorf("ecies: hkdf read error: %w", err)
	}
	return eciesKeys{
		enc: buf[:eciesEncKeySize],
		mac: buf[eciesEncKeySize : eciesEncKeySize+eciesMacKeySize],
		iv:  buf[eciesEncKeySize+eciesMacKeySize:],
	}, nil
}

func (k eciesKeys) ivFor(label string, nonce []byte) []byte {
	h := hmac.New(sha256.New, k.iv)
	h.Write([]byte(label))
	h.Write(nonce)
	return h.Sum(nil)[:aes.BlockSize]
}

func (k eciesKeys) tag(label string, ct []byte) []byte {
	h := hmac.New(sha256.New, k.mac)
	h.Write([]byte(label))
	h.Write(ct)
	return h.Sum(nil)
}

func (k eciesKeys) seal(label string, nonce, plain []byte) (ct, mac []byte, err error) {
	block, err := aes.NewCipher(k.enc)
	if err != nil {
		return nil, nil, fmt.Errorf("ecies: aes cipher init error: %w", err)
	}
	ct = make([]byte, len(plain))
	cipher.NewCTR(block, k.ivFor(label, nonce)).XORKeyStream(ct, plain)
	return ct, k.tag(label, ct), nil
}

func (k eciesKeys) open(label string, nonce, ct, mac []byte) ([]byte, error) {
	if !hmac.Equal(mac, k.tag(label, ct)) {
		return nil, errECIESMacMismatch
	}
	block, err := aes.NewCipher(k.enc)
	if err != nil {
		return nil, fmt.Errorf("ecies: aes cipher init error: %w", err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCTR(block, k.ivFor(label, nonce)).XORKeyStream(plain, ct)
	return plain, nil
}

func decodeECIESPayload(encryptedData, mac string) (ct, tag []byte, err error) {
	ct, err = base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return nil, nil, fmt.Errorf("ecies: encryptedData: %w", err)
	}
	tag, err = base64.StdEncoding.DecodeString(mac)
	if err != nil {
		return nil, nil, fmt.Errorf("ecies: mac: %w", err)
	}
	return ct, tag, nil
}
