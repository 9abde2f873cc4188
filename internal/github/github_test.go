// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package github

import (
	"context"
	"crypto/x509"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/keysync/internal/fingerprint"
	"github.com/toeirei/keysync/internal/testutil"
)

func newTestClient(t *testing.T, gh *testutil.FakeGitHub) *Client {
	t.Helper()
	return NewClient(gh.Server.Client(), fingerprint.NativeOracle{}, WithBaseURL(gh.URL()))
}

func TestFetchKeys(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	a := testutil.NewTestKey(t, "")
	b := testutil.NewTestKey(t, "")
	gh.SetKeys("alice", a.Line, "", b.Line)

	keys, err := newTestClient(t, gh).FetchKeys(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FetchKeys: %v", err)
	}
	if len(keys) != 2 || keys[0] != a.Line || keys[1] != b.Line {
		t.Fatalf("unexpected keys: %#v", keys)
	}
	if gh.Requests[0] != "/alice.keys" {
		t.Fatalf("unexpected request path %q", gh.Requests[0])
	}
}

func TestFetchKeys_NoKeys(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetKeys("empty")

	keys, err := newTestClient(t, gh).FetchKeys(context.Background(), "empty")
	if err != nil {
		t.Fatalf("FetchKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestFetchKeys_HTTPFailure(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.Status["broken"] = http.StatusInternalServerError

	c := newTestClient(t, gh)
	for _, user := range []string{"broken", "unknown"} {
		_, err := c.FetchKeys(context.Background(), user)
		var le *LookupError
		if !errors.As(err, &le) {
			t.Fatalf("%s: expected *LookupError, got %T %v", user, err, err)
		}
		if le.Account != user || le.StatusCode == 0 {
			t.Fatalf("%s: unexpected error fields: %+v", user, le)
		}
	}
}

func TestFetchKeys_OversizedListing(t *testing.T) {
	key := testutil.NewTestKey(t, "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		line := key.Line + "\n"
		for n := 0; n <= maxListingSize; n += len(line) {
			_, _ = w.Write([]byte(line))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), fingerprint.NativeOracle{}, WithBaseURL(srv.URL))
	_, err := c.FetchKeys(context.Background(), "alice")
	var le *LookupError
	if !errors.As(err, &le) || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected *LookupError for oversized listing, got %T %v", err, err)
	}
}

func TestFetchKeys_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(&http.Client{Timeout: time.Second}, fingerprint.NativeOracle{}, WithBaseURL(base))
	_, err := c.FetchKeys(context.Background(), "alice")
	var le *LookupError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LookupError, got %T %v", err, err)
	}
	if le.Err == nil {
		t.Fatalf("expected wrapped transport error")
	}
}

func TestFetchKeys_EscapesAccount(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.EscapedPath()
		if ua := r.Header.Get("User-Agent"); ua != "keysync-test" {
			t.Errorf("unexpected user agent %q", ua)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), fingerprint.NativeOracle{}, WithBaseURL(srv.URL+"/"), WithUserAgent("keysync-test"))
	if _, err := c.FetchKeys(context.Background(), "a/b"); err != nil {
		t.Fatalf("FetchKeys: %v", err)
	}
	if got != "/a%2Fb.keys" {
		t.Fatalf("account was not escaped: %q", got)
	}
}

func TestLookupMatchingKey(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	a := testutil.NewTestKey(t, "")
	b := testutil.NewTestKey(t, "")
	gh.SetKeys("alice", a.Line, b.Line)
	c := newTestClient(t, gh)

	key, found, err := c.LookupMatchingKey(context.Background(), "alice", b.Fingerprint)
	if err != nil || !found {
		t.Fatalf("expected match, got found=%v err=%v", found, err)
	}
	if key != b.Line {
		t.Fatalf("expected key %q, got %q", b.Line, key)
	}

	_, found, err = c.LookupMatchingKey(context.Background(), "alice", "SHA256:nope")
	if err != nil || found {
		t.Fatalf("expected no match, got found=%v err=%v", found, err)
	}
	if gh.RequestCount() != 2 {
		t.Fatalf("expected one request per lookup, got %d", gh.RequestCount())
	}
}

func TestLookupMatchingKey_FirstMatchWins(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	a := testutil.NewTestKey(t, "")
	// Same key listed twice with different trailing text; the first listing wins.
	gh.SetKeys("dup", a.Line+" first", a.Line+" second")

	key, found, err := newTestClient(t, gh).LookupMatchingKey(context.Background(), "dup", a.Fingerprint)
	if err != nil || !found {
		t.Fatalf("expected match, got found=%v err=%v", found, err)
	}
	if !strings.HasSuffix(key, "first") {
		t.Fatalf("expected first listed key, got %q", key)
	}
}

func TestLookupMatchingKey_OracleErrorPropagates(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetKeys("weird", "not-a-key")

	_, _, err := newTestClient(t, gh).LookupMatchingKey(context.Background(), "weird", "SHA256:x")
	var oe *fingerprint.OracleError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *fingerprint.OracleError, got %T %v", err, err)
	}
}

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient(0, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if c.Timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %v", c.Timeout)
	}
	if _, err := NewHTTPClient(time.Second, []string{"not-base64!"}); err == nil {
		t.Fatalf("expected error for invalid pin")
	}
}

func TestPinnedClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\n"))
	}))
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	run := func(pin string) error {
		c, err := NewHTTPClient(time.Second, []string{pin})
		if err != nil {
			t.Fatalf("NewHTTPClient: %v", err)
		}
		c.Transport.(*http.Transport).TLSClientConfig.RootCAs = pool
		_, err = NewClient(c, fingerprint.NativeOracle{}, WithBaseURL(srv.URL)).FetchKeys(context.Background(), "alice")
		return err
	}

	if err := run(SPKIPin(srv.Certificate())); err != nil {
		t.Fatalf("expected pinned request to succeed: %v", err)
	}
	wrong := SPKIPin(&x509.Certificate{RawSubjectPublicKeyInfo: []byte("other")})
	err := run(wrong)
	if err == nil || !strings.Contains(err.Error(), ErrPinMismatch.Error()) {
		t.Fatalf("expected pin mismatch, got %v", err)
	}
}
