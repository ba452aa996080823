// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jredh-dev/shroud/internal/credstore"
	"github.com/jredh-dev/shroud/pkg/envelope"
	"github.com/jredh-dev/shroud/pkg/headercodec"
)

// Log entry directions.
const (
	DirRequest  = "request"
	DirResponse = "response"
	DirError    = "error"
)

// maxEntries bounds the in-memory request log.
const maxEntries = 200

// ErrNoToken is returned by Login when the server answers without a token.
var ErrNoToken = errors.New("login response carried no token")

// StatusError is returned by Send for non-2xx responses.
type StatusError struct {
	Status int
	Body   any
}

func (e *StatusError) Error() string {
	if m, ok := e.Body.(map[string]any); ok {
		if msg, ok := m["error"].(string); ok {
			return fmt.Sprintf("server returned %d: %s", e.Status, msg)
		}
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// LogEntry records one side of an exchange, plaintext and encrypted.
type LogEntry struct {
	ID        string            `json:"id" yaml:"id"`
	Time      time.Time         `json:"time" yaml:"time"`
	Direction string            `json:"direction" yaml:"direction"`
	Method    string            `json:"method" yaml:"method"`
	URL       string            `json:"url" yaml:"url"`
	Status    int               `json:"status,omitempty" yaml:"status,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body      any               `json:"body,omitempty" yaml:"body,omitempty"`
	Encrypted string            `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
}

// SecureClient talks to the secure service. Credentials travel as numbered
// headers rebuilt from the local credential store; bodies travel enveloped.
type SecureClient struct {
	baseURL    string
	httpClient *http.Client
	sealer     *envelope.Sealer
	codec      *headercodec.Codec
	creds      *credstore.Store
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries []LogEntry
}

// NewSecureClient returns a client for baseURL.
func NewSecureClient(baseURL string, sealer *envelope.Sealer, codec *headercodec.Codec, creds *credstore.Store, log zerolog.Logger) *SecureClient {
	return &SecureClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		sealer:     sealer,
		codec:      codec,
		creds:      creds,
		log:        log,
		now:        time.Now,
	}
}

// Send performs one request. data, when non-nil, is enveloped. With withAuth
// the stored credential records are encoded into headers under a fresh
// timestamp. The decrypted response body is returned as parsed JSON, or as a
// string when it is not JSON.
func (c *SecureClient) Send(ctx context.Context, method, path string, data any, withAuth bool) (any, error) {
	url := c.baseURL + path
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	if withAuth {
		raw, ok, err := c.creds.Raw(ctx)
		if err != nil {
			return nil, fmt.Errorf("read credential: %w", err)
		}
		if ok {
			ts := c.now().UnixMilli()
			headercodec.Apply(headers, c.codec.Encode(raw, ts), ts)
		} else {
			c.log.Debug().Msg("no stored credential, sending without one")
		}
	}

	var (
		body      io.Reader
		encrypted string
	)
	if data != nil {
		env, err := c.sealer.Wrap(data)
		if err != nil {
			return nil, fmt.Errorf("wrap body: %w", err)
		}
		b, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("marshal envelope: %w", err)
		}
		body, encrypted = bytes.NewReader(b), env.Cipher
	}

	c.record(LogEntry{Direction: DirRequest, Method: method, URL: url, Headers: flatten(headers), Body: data, Encrypted: encrypted})

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header = headers

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(LogEntry{Direction: DirError, Method: method, URL: url, Body: err.Error()})
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(LogEntry{Direction: DirError, Method: method, URL: url, Status: resp.StatusCode, Body: err.Error()})
		return nil, fmt.Errorf("%s %s read: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		parsed := parse(string(respBody))
		c.record(LogEntry{Direction: DirError, Method: method, URL: url, Status: resp.StatusCode, Headers: flatten(resp.Header), Body: parsed})
		return nil, &StatusError{Status: resp.StatusCode, Body: parsed}
	}

	env, ok := envelope.Parse(respBody)
	if !ok {
		parsed := parse(string(respBody))
		c.record(LogEntry{Direction: DirResponse, Method: method, URL: url, Status: resp.StatusCode, Headers: flatten(resp.Header), Body: parsed})
		return parsed, nil
	}
	plain, err := c.sealer.Unwrap(env)
	if err != nil {
		c.record(LogEntry{Direction: DirError, Method: method, URL: url, Status: resp.StatusCode, Headers: flatten(resp.Header), Body: "Failed to decrypt response", Encrypted: env.Cipher})
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.record(LogEntry{Direction: DirResponse, Method: method, URL: url, Status: resp.StatusCode, Headers: flatten(resp.Header), Body: plain, Encrypted: env.Cipher})
	return plain, nil
}

// Login requests a token for username and stores it, replacing any previous
// one.
func (c *SecureClient) Login(ctx context.Context, username string) (string, error) {
	out, err := c.Send(ctx, http.MethodPost, "/auth/login", map[string]string{"username": username}, false)
	if err != nil {
		return "", err
	}
	m, _ := out.(map[string]any)
	tok, _ := m["token"].(string)
	if tok == "" {
		return "", ErrNoToken
	}
	if err := c.creds.Save(ctx, tok); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return tok, nil
}

// Profile calls the authenticated profile endpoint.
func (c *SecureClient) Profile(ctx context.Context) (any, error) {
	return c.Send(ctx, http.MethodGet, "/api/profile", nil, true)
}

// Logout forgets the stored credential.
func (c *SecureClient) Logout(ctx context.Context) error {
	return c.creds.Clear(ctx)
}

// Entries returns the request log, newest first.
func (c *SecureClient) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.entries))
	for i, e := range c.entries {
		out[len(c.entries)-1-i] = e
	}
	return out
}

func (c *SecureClient) record(e LogEntry) {
	e.ID = uuid.NewString()
	e.Time = c.now()

	c.log.Debug().
		Str("direction", e.Direction).
		Str("method", e.Method).
		Str("url", e.URL).
		Int("status", e.Status).
		Msg("exchange")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	if len(c.entries) > maxEntries {
		c.entries = c.entries[len(c.entries)-maxEntries:]
	}
}

func parse(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
