// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package github

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single key listing request.
const DefaultTimeout = 10 * time.Second

// ErrPinMismatch is returned when no certificate in the verified chain
// matches a configured SPKI pin.
var ErrPinMismatch = errors.New("github: no certificate in chain matches a pinned public key")

// NewHTTPClient returns the client shared by all lookups in a run. The normal
// system trust chain is always verified. When pins is non-empty, at least one
// certificate of the verified chain must also have a SubjectPublicKeyInfo
// whose base64 SHA-256 digest is listed.
func NewHTTPClient(timeout time.Duration, pins []string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if len(pins) > 0 {
		pinSet := make(map[string]struct{}, len(pins))
		for _, p := range pins {
			raw, err := base64.StdEncoding.DecodeString(p)
			if err != nil || len(raw) != sha256.Size {
				return nil, fmt.Errorf("invalid SPKI pin %q: expected base64 SHA-256 digest", p)
			}
			pinSet[p] = struct{}{}
		}
		transport.TLSClientConfig = &tls.Config{
			MinVersion:       tls.VersionTLS12,
			VerifyConnection: func(cs tls.ConnectionState) error { return verifyPins(cs.VerifiedChains, pinSet) },
		}
	}

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

func verifyPins(chains [][]*x509.Certificate, pins map[string]struct{}) error {
	for _, chain := range chains {
		for _, cert := range chain {
			if _, ok := pins[SPKIPin(cert)]; ok {
				return nil
			}
		}
	}
	return ErrPinMismatch
}

// SPKIPin returns the base64 SHA-256 digest of cert's public key info.
func SPKIPin(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return base64.StdEncoding.EncodeToString(sum[:])
}
