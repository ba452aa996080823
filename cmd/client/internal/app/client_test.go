// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jredh-dev/shroud/internal/credstore"
	"github.com/jredh-dev/shroud/internal/kv"
	"github.com/jredh-dev/shroud/pkg/cce"
	"github.com/jredh-dev/shroud/pkg/envelope"
	"github.com/jredh-dev/shroud/pkg/headercodec"
)

const issuedToken = "header.payload-with-some-length-to-split.signature"

// fakeServer mimics the secure service: it rebuilds the credential from
// headers, opens enveloped bodies and envelopes 200 JSON replies.
type fakeServer struct {
	t      *testing.T
	cipher *cce.Cipher
	codec  *headercodec.Codec
	sealer *envelope.Sealer

	lastBody       string
	lastCredential string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	if env, ok := envelope.Parse(b); ok {
		plain, err := f.sealer.Open(env)
		require.NoError(f.t, err)
		f.lastBody = plain
	}

	f.lastCredential = ""
	if decoded, err := f.codec.Decode(r.Header); err == nil {
		if cred, err := credstore.Reassemble(f.cipher, decoded.Entries); err == nil {
			f.lastCredential = cred
		}
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/login":
		f.sealed(w, map[string]string{"token": issuedToken})
	case "/api/profile":
		if f.lastCredential != issuedToken {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Unauthorized: Missing token"}`))
			return
		}
		f.sealed(w, map[string]any{"ok": true, "user": map[string]string{"sub": "alice"}})
	case "/text":
		f.sealed(w, "just words")
	case "/plain":
		w.Write([]byte(`{"status":"ok"}`))
	case "/garbled":
		w.Write([]byte(`{"cipher":"AAAA"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}
}

func (f *fakeServer) sealed(w http.ResponseWriter, v any) {
	env, err := f.sealer.Wrap(v)
	require.NoError(f.t, err)
	json.NewEncoder(w).Encode(env)
}

func newTestClient(t *testing.T) (*SecureClient, *fakeServer, *credstore.Store) {
	t.Helper()
	cipher := cce.New("secretcce", "abcdefghijklmnopqrstuvwxyz0123456789")
	codec := headercodec.New(cipher)
	sealer, err := envelope.New("yoursecretkey123", "yoursecretiv1234")
	require.NoError(t, err)

	fs := &fakeServer{t: t, cipher: cipher, codec: codec, sealer: sealer}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	creds := credstore.New(kv.NewMemory(), cipher, zerolog.Nop())
	return NewSecureClient(srv.URL+"/", sealer, codec, creds, zerolog.Nop()), fs, creds
}

func TestLoginStoresToken(t *testing.T) {
	c, fs, creds := newTestClient(t)
	ctx := context.Background()

	tok, err := c.Login(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, issuedToken, tok)
	assert.JSONEq(t, `{"username":"alice"}`, fs.lastBody)
	assert.Empty(t, fs.lastCredential, "login is sent without credential headers")

	stored, ok, err := creds.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, issuedToken, stored)
}

func TestProfileCarriesCredential(t *testing.T) {
	c, fs, _ := newTestClient(t)
	ctx := context.Background()
	_, err := c.Login(ctx, "alice")
	require.NoError(t, err)

	out, err := c.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, issuedToken, fs.lastCredential)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, m["ok"])
}

func TestProfileWithoutLogin(t *testing.T) {
	c, _, _ := newTestClient(t)
	_, err := c.Profile(context.Background())

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Contains(t, se.Error(), "Unauthorized: Missing token")
}

func TestLogout(t *testing.T) {
	c, _, creds := newTestClient(t)
	ctx := context.Background()
	_, err := c.Login(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	_, ok, err := creds.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Profile(ctx)
	assert.Error(t, err)
}

func TestSendResponseForms(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	out, err := c.Send(ctx, http.MethodGet, "/text", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "just words", out)

	out, err = c.Send(ctx, http.MethodGet, "/plain", nil, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "ok"}, out)

	_, err = c.Send(ctx, http.MethodGet, "/garbled", nil, false)
	assert.Error(t, err)

	_, err = c.Send(ctx, http.MethodGet, "/missing", nil, false)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, "not found", se.Body)
}

func TestEntriesRecordBothSides(t *testing.T) {
	c, _, _ := newTestClient(t)
	_, err := c.Login(context.Background(), "alice")
	require.NoError(t, err)

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, DirResponse, entries[0].Direction, "newest first")
	assert.Equal(t, DirRequest, entries[1].Direction)

	req := entries[1]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, map[string]string{"username": "alice"}, req.Body)
	assert.NotEmpty(t, req.Encrypted)
	assert.NotEmpty(t, req.ID)

	resp := entries[0]
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]any{"token": issuedToken}, resp.Body)
	assert.NotEqual(t, req.ID, resp.ID)
}

func TestEntriesAreBounded(t *testing.T) {
	c, _, _ := newTestClient(t)
	for i := 0; i < maxEntries+10; i++ {
		c.record(LogEntry{Direction: DirRequest})
	}
	assert.Len(t, c.Entries(), maxEntries)
}

func TestSendTransportError(t *testing.T) {
	c, _, _ := newTestClient(t)
	c.baseURL = "http://127.0.0.1:1"
	_, err := c.Send(context.Background(), http.MethodGet, "/health", nil, false)
	require.Error(t, err)
	assert.Equal(t, DirError, c.Entries()[0].Direction)
}
