// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package envelope

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := New("yoursecretkey123", "yoursecretiv1234")
	require.NoError(t, err)
	return s
}

// Vectors produced with `openssl enc -aes-128-cbc`, which matches CryptoJS
// for UTF-8 parsed key and IV.
func TestKnownVectors(t *testing.T) {
	s := testSealer(t)
	assert.Equal(t, "hGMU6tbt9fBWVQEh645Aaw==", s.Encrypt("hello"))
	assert.Equal(t, "2ns59eF6QYTSH7SqaNwNBw==", s.Encrypt(`{"token":"abc"}`))

	plain, err := s.Decrypt("2ns59eF6QYTSH7SqaNwNBw==")
	require.NoError(t, err)
	assert.Equal(t, `{"token":"abc"}`, plain)
}

func TestNewValidation(t *testing.T) {
	_, err := New("short", "yoursecretiv1234")
	assert.Error(t, err)

	_, err = New("yoursecretkey123", "short")
	assert.Error(t, err)

	// longer IVs are truncated
	long, err := New("yoursecretkey123", "yoursecretiv1234-extra")
	require.NoError(t, err)
	assert.Equal(t, testSealer(t).Encrypt("x"), long.Encrypt("x"))

	_, err = New(strings.Repeat("k", 32), strings.Repeat("v", 32))
	assert.NoError(t, err)
}

func TestWrapUnwrap(t *testing.T) {
	s := testSealer(t)

	tests := []struct {
		name    string
		payload any
		want    any
	}{
		{"object", map[string]any{"username": "alice"}, map[string]any{"username": "alice"}},
		{"struct", struct {
			OK bool `json:"ok"`
		}{true}, map[string]any{"ok": true}},
		{"plain string", "not json at all", "not json at all"},
		{"json string verbatim", `{"a":1}`, map[string]any{"a": float64(1)}},
		{"number", 42, float64(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := s.Wrap(tt.payload)
			require.NoError(t, err)
			require.NotEmpty(t, env.Cipher)

			got, err := s.Unwrap(env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvelopeJSON(t *testing.T) {
	s := testSealer(t)
	env, err := s.Wrap(map[string]string{"token": "abc"})
	require.NoError(t, err)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Equal(t, `{"cipher":"2ns59eF6QYTSH7SqaNwNBw=="}`, string(b))
}

func TestUnwrapErrors(t *testing.T) {
	s := testSealer(t)

	_, err := s.Unwrap(Envelope{})
	assert.ErrorIs(t, err, ErrNoCipher)

	_, err = s.Unwrap(Envelope{Cipher: "!!!not base64"})
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = s.Unwrap(Envelope{Cipher: "aGVsbG8="})
	assert.ErrorIs(t, err, ErrDecrypt)

	other, err := New("anotherkey123456", "yoursecretiv1234")
	require.NoError(t, err)
	env, err := other.Wrap("secret payload")
	require.NoError(t, err)
	if got, err := s.Unwrap(env); err == nil {
		assert.NotEqual(t, "secret payload", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		body string
		ok   bool
	}{
		{`{"cipher":"abc"}`, true},
		{`{"cipher":""}`, false},
		{`{"cipher":123}`, false},
		{`{"username":"alice"}`, false},
		{`not json`, false},
		{``, false},
	}
	for _, tt := range tests {
		env, ok := Parse([]byte(tt.body))
		assert.Equal(t, tt.ok, ok, tt.body)
		if ok {
			assert.Equal(t, "abc", env.Cipher)
		}
	}
}
