package networking

import (
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const pinPrefix = "sha256/"

var errPinMismatch = errors.New("tls: no certificate in chain matches a pinned key")

type sslMode int

const (
	sslDefault sslMode = iota
	sslNone
	sslPinning
)

// SSLValidation selects how the dispatcher validates server certificates.
type SSLValidation struct {
	mode sslMode
	pins [][]byte
	err  error
}

// SSLValidationDefault uses the system trust store.
func SSLValidationDefault() SSLValidation {
	return SSLValidation{mode: sslDefault}
}

// SSLValidationNone disables certificate validation. Use only for
// development backends.
func SSLValidationNone() SSLValidation {
	return SSLValidation{mode: sslNone}
}

// SSLValidationPinning validates the chain normally and additionally requires
// one certificate whose public key matches a pin. Pins have the form
// "sha256/<base64 of the SHA-256 of the SubjectPublicKeyInfo>".
func SSLValidationPinning(pins ...string) SSLValidation {
	v := SSLValidation{mode: sslPinning}
	if len(pins) == 0 {
		v.err = errors.New("tls: pinning requires at least one pin")
		return v
	}
	for _, pin := range pins {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(pin, pinPrefix))
		if err != nil || len(raw) != sha256.Size {
			v.err = fmt.Errorf("tls: invalid pin %q", pin)
			return v
		}
		v.pins = append(v.pins, raw)
	}
	return v
}

// SPKIPin returns the pin string for cert.
func SPKIPin(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return pinPrefix + base64.StdEncoding.EncodeToString(sum[:])
}

func (v SSLValidation) String() string {
	switch v.mode {
	case sslNone:
		return "none"
	case sslPinning:
		return fmt.Sprintf("pinning(%d)", len(v.pins))
	default:
		return "default"
	}
}

// apply installs the validation on client's transport. The transport is
// cloned so a shared *http.Transport is never modified.
func (v SSLValidation) apply(client *http.Client) error {
	if v.err != nil {
		return v.err
	}
	if v.mode == sslDefault {
		return nil
	}

	var transport *http.Transport
	switch t := client.Transport.(type) {
	case nil:
		transport = http.DefaultTransport.(*http.Transport).Clone()
	case *http.Transport:
		transport = t.Clone()
	default:
		return fmt.Errorf("tls: cannot apply %s validation to transport %T", v, client.Transport)
	}

	cfg := transport.TLSClientConfig
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}

	switch v.mode {
	case sslNone:
		cfg.InsecureSkipVerify = true
	case sslPinning:
		cfg.VerifyPeerCertificate = v.verifyPins
	}
	transport.TLSClientConfig = cfg
	client.Transport = transport
	return nil
}

func (v SSLValidation) verifyPins(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			continue
		}
		sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
		for _, pin := range v.pins {
			if subtle.ConstantTimeCompare(sum[:], pin) == 1 {
				return nil
			}
		}
	}
	return errPinMismatch
}
