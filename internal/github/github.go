// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package github looks up the SSH public keys GitHub publishes for an
// account and selects the one matching a trusted fingerprint.
package github // import "github.com/toeirei/keysync/internal/github"

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/toeirei/keysync/internal/fingerprint"
	"github.com/toeirei/keysync/internal/logging"
)

// DefaultBaseURL is where "<account>.keys" listings are served. The plain
// listing is used instead of the REST API to stay clear of API rate limits.
const DefaultBaseURL = "https://github.com"

// maxListingSize bounds how much of a key listing is read.
const maxListingSize = 1 << 20

// LookupError reports a failed key retrieval for one account.
type LookupError struct {
	Account    string
	StatusCode int
	Err        error
}

func (e *LookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("github: fetch keys for %s: unexpected status %d %s", e.Account, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("github: fetch keys for %s: %v", e.Account, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Client fetches key listings. The zero value is not usable; use NewClient.
type Client struct {
	http      *http.Client
	oracle    fingerprint.Oracle
	baseURL   string
	userAgent string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different host, e.g. a test server or a
// GitHub Enterprise instance.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient builds a lookup client. httpClient is shared for the whole run;
// nil means http.DefaultClient.
func NewClient(httpClient *http.Client, oracle fingerprint.Oracle, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		http:      httpClient,
		oracle:    oracle,
		baseURL:   DefaultBaseURL,
		userAgent: "keysync",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchKeys returns the account's published keys in listing order. An
// account without keys yields an empty slice and no error.
func (c *Client) FetchKeys(ctx context.Context, account string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%s.keys", c.baseURL, url.PathEscape(account))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &LookupError{Account: account, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &LookupError{Account: account, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &LookupError{Account: account, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingSize+1))
	if err != nil {
		return nil, &LookupError{Account: account, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxListingSize {
		return nil, &LookupError{Account: account, Err: fmt.Errorf("key listing exceeds %d bytes", maxListingSize)}
	}

	var keys []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), maxListingSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		keys = append(keys, line)
	}
	if err := sc.Err(); err != nil {
		return nil, &LookupError{Account: account, Err: fmt.Errorf("scan body: %w", err)}
	}
	logging.Debugf("github: %s publishes %d key(s)", account, len(keys))
	return keys, nil
}

// LookupMatchingKey returns the first published key whose fingerprint equals
// target. Fingerprints are compared instead of key text because GitHub strips
// key comments. found is false when no key matches.
func (c *Client) LookupMatchingKey(ctx context.Context, account, target string) (key string, found bool, err error) {
	keys, err := c.FetchKeys(ctx, account)
	if err != nil {
		return "", false, err
	}
	for _, k := range keys {
		fp, err := c.oracle.Fingerprint(ctx, []byte(k))
		if err != nil {
			return "", false, fmt.Errorf("fingerprint published key of %s: %w", account, err)
		}
		if fp == target {
			return k, true, nil
		}
	}
	return "", false, nil
}
