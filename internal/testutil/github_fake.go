// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeGitHub serves /{user}.keys from an in-memory map. Users missing from
// Keys get a 404, like github.com does for unknown accounts.
type FakeGitHub struct {
	mu       sync.Mutex
	Keys     map[string][]string
	Status   map[string]int
	Requests []string

	Server *httptest.Server
}

// NewFakeGitHub starts the server and registers cleanup on t.
func NewFakeGitHub(t *testing.T) *FakeGitHub {
	t.Helper()
	f := &FakeGitHub{Keys: map[string][]string{}, Status: map[string]int{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// SetKeys replaces the key list published for user.
func (f *FakeGitHub) SetKeys(user string, keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys[user] = keys
}

// URL is the base URL to hand to github.WithBaseURL.
func (f *FakeGitHub) URL() string { return f.Server.URL }

// RequestCount returns how many key listings were served.
func (f *FakeGitHub) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

func (f *FakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, r.URL.Path)

	user, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".keys")
	if !ok || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if code, ok := f.Status[user]; ok {
		w.WriteHeader(code)
		return
	}
	keys, ok := f.Keys[user]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, k := range keys {
		_, _ = w.Write([]byte(k + "\n"))
	}
}
