package networking

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// stubEncryptor encrypts by reversing the body; a nil reply declines.
type stubEncryptor struct {
	decline    bool
	encryptErr error
	decryptErr error
	encrypted  int
}

func (s *stubEncryptor) Encrypt(plain []byte) (*Cryptogram, error) {
	if s.encryptErr != nil {
		return nil, s.encryptErr
	}
	if s.decline {
		return nil, nil
	}
	s.encrypted++
	return &Cryptogram{
		EphemeralPublicKey: "epk",
		EncryptedData:      reverse(string(plain)),
		Mac:                "mac",
		Nonce:              "nonce",
	}, nil
}

func (s *stubEncryptor) Decrypt(encryptedData, mac string) ([]byte, error) {
	if s.decryptErr != nil {
		return nil, s.decryptErr
	}
	if mac != "mac" {
		return nil, errors.New("bad mac")
	}
	return []byte(reverse(encryptedData)), nil
}

func (s *stubEncryptor) Metadata() EncryptorMetadata {
	return EncryptorMetadata{HeaderKey: "X-Test-Encryption", HeaderValue: "stub"}
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func TestWrapNilEncryptor(t *testing.T) {
	plain := []byte(`{"a":1}`)
	got, err := Wrap(nil, plain)
	if err != nil {
		t.Fatalf("Wrap() returned error: %v", err)
	}
	if got.Encrypted() || !bytes.Equal(got.Body, plain) {
		t.Errorf("Expected plain passthrough, got %s (%s)", got.Body, got.Mode)
	}
}

func TestWrapDeclined(t *testing.T) {
	plain := []byte(`{"a":1}`)
	got, err := Wrap(&stubEncryptor{decline: true}, plain)
	if err != nil {
		t.Fatalf("Wrap() returned error: %v", err)
	}
	if got.Mode != WrapPlain {
		t.Errorf("Expected WrapPlain, got %s", got.Mode)
	}
	if !bytes.Equal(got.Body, plain) {
		t.Errorf("Expected body unchanged, got %s", got.Body)
	}
}

func TestWrapEncrypted(t *testing.T) {
	got, err := Wrap(&stubEncryptor{}, []byte("abc"))
	if err != nil {
		t.Fatalf("Wrap() returned error: %v", err)
	}
	if !got.Encrypted() {
		t.Fatal("Expected WrapEncrypted")
	}

	var env RequestEnvelope
	if err := json.Unmarshal(got.Body, &env); err != nil {
		t.Fatalf("Body is not a RequestEnvelope: %v", err)
	}
	if env.EncryptedData != "cba" || env.Mac != "mac" || env.Nonce != "nonce" || env.EphemeralPublicKey != "epk" {
		t.Errorf("Unexpected envelope: %+v", env)
	}
}

func TestWrapOmitsOptionalEnvelopeFields(t *testing.T) {
	body, err := json.Marshal(RequestEnvelope{EncryptedData: "d", Mac: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(body), "nonce") || strings.Contains(string(body), "ephemeralPublicKey") {
		t.Errorf("Expected optional fields to be omitted, got %s", body)
	}
}

func TestWrapEncryptError(t *testing.T) {
	_, err := Wrap(&stubEncryptor{encryptErr: errors.New("no session")}, []byte("x"))

	apiErr, ok := AsApiError(err)
	if !ok {
		t.Fatalf("Expected *ApiError, got %T", err)
	}
	if apiErr.Kind != AuthResolutionFailure {
		t.Errorf("Expected AuthResolutionFailure, got %s", apiErr.Kind)
	}
	if apiErr.ErrorCode != ErrorCodeEncryption {
		t.Errorf("Expected ERR_ENCRYPTION, got %q", apiErr.ErrorCode)
	}
}

func TestUnwrap(t *testing.T) {
	body := []byte(`{"encryptedData":"}1:\"a\"{","mac":"mac"}`)
	plain, err := Unwrap(&stubEncryptor{}, body)
	if err != nil {
		t.Fatalf("Unwrap() returned error: %v", err)
	}
	if string(plain) != `{"a":1}` {
		t.Errorf("Expected {\"a\":1}, got %s", plain)
	}
}

func TestUnwrapFailuresAreDecodeFailures(t *testing.T) {
	tests := []struct {
		name string
		enc  Encryptor
		body string
	}{
		{"nil encryptor", nil, `{"encryptedData":"x","mac":"mac"}`},
		{"not json", &stubEncryptor{}, `nope`},
		{"missing mac", &stubEncryptor{}, `{"encryptedData":"x"}`},
		{"bad mac", &stubEncryptor{}, `{"encryptedData":"x","mac":"other"}`},
		{"decrypt error", &stubEncryptor{decryptErr: errors.New("boom")}, `{"encryptedData":"x","mac":"mac"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unwrap(tt.enc, []byte(tt.body))
			if !errors.Is(err, ErrKindDecode) {
				t.Errorf("Expected DecodeFailure, got %v", err)
			}
		})
	}
}

func newTestECIES(t *testing.T) (*ECIESEncryptor, *ECIESDecryptor) {
	t.Helper()
	priv, pub, err := GenerateECIESKeyPair(nil)
	if err != nil {
		t.Fatalf("GenerateECIESKeyPair() returned error: %v", err)
	}
	dec, err := NewECIESDecryptor(priv, []byte("app-scope"))
	if err != nil {
		t.Fatalf("NewECIESDecryptor() returned error: %v", err)
	}
	enc, err := NewECIESEncryptor(ECIESConfig{
		ServerPublicKey: pub,
		SharedInfo:      []byte("app-scope"),
		ApplicationKey:  "app-key",
		ActivationID:    "act-1",
	})
	if err != nil {
		t.Fatalf("NewECIESEncryptor() returned error: %v", err)
	}
	return enc, dec
}

func TestECIESRoundTrip(t *testing.T) {
	enc, dec := newTestECIES(t)
	request := []byte(`{"requestObject":{"pin":"1234"}}`)

	wrapped, err := Wrap(enc, request)
	if err != nil {
		t.Fatalf("Wrap() returned error: %v", err)
	}
	if bytes.Contains(wrapped.Body, []byte("1234")) {
		t.Error("Expected the envelope not to contain plaintext")
	}

	var env RequestEnvelope
	if err := json.Unmarshal(wrapped.Body, &env); err != nil {
		t.Fatal(err)
	}
	plain, responder, err := dec.OpenRequest(env)
	if err != nil {
		t.Fatalf("OpenRequest() returned error: %v", err)
	}
	if !bytes.Equal(plain, request) {
		t.Errorf("Expected %s, got %s", request, plain)
	}

	sealed, err := responder.Seal([]byte(`{"status":"OK"}`))
	if err != nil {
		t.Fatalf("Seal() returned error: %v", err)
	}
	body, _ := json.Marshal(sealed)

	reply, err := Unwrap(enc, body)
	if err != nil {
		t.Fatalf("Unwrap() returned error: %v", err)
	}
	if string(reply) != `{"status":"OK"}` {
		t.Errorf("Expected decrypted reply, got %s", reply)
	}
}

func TestECIESTamperedMac(t *testing.T) {
	enc, dec := newTestECIES(t)
	wrapped, err := Wrap(enc, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	var env RequestEnvelope
	if err := json.Unmarshal(wrapped.Body, &env); err != nil {
		t.Fatal(err)
	}
	env.EncryptedData = "AAAA" + env.EncryptedData[4:]

	if _, _, err := dec.OpenRequest(env); err == nil {
		t.Error("Expected tampered ciphertext to be rejected")
	}
}

func TestECIESDecryptWithoutEncrypt(t *testing.T) {
	enc, _ := newTestECIES(t)
	if _, err := enc.Decrypt("AAAA", "AAAA"); err == nil {
		t.Error("Expected Decrypt without a pending request to fail")
	}
}

func TestECIESDeclinesWhenInactive(t *testing.T) {
	_, pub, err := GenerateECIESKeyPair(nil)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := NewECIESEncryptor(ECIESConfig{
		ServerPublicKey: pub,
		Active:          func() bool { return false },
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := Wrap(enc, []byte("x"))
	if err != nil {
		t.Fatalf("Wrap() returned error: %v", err)
	}
	if got.Encrypted() {
		t.Error("Expected an inactive encryptor to decline")
	}
}

func TestECIESMetadata(t *testing.T) {
	enc, _ := newTestECIES(t)
	meta := enc.Metadata()

	if meta.HeaderKey != EncryptionHeader {
		t.Errorf("Expected %s, got %s", EncryptionHeader, meta.HeaderKey)
	}
	for _, want := range []string{`application_key="app-key"`, `activation_id="act-1"`} {
		if !strings.Contains(meta.HeaderValue, want) {
			t.Errorf("Expected %s in %q", want, meta.HeaderValue)
		}
	}
}

func TestNewECIESEncryptorRejectsBadKey(t *testing.T) {
	if _, err := NewECIESEncryptor(ECIESConfig{ServerPublicKey: []byte("short")}); err == nil {
		t.Error("Expected an error for a short public key")
	}
}
