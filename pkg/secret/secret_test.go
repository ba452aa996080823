// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package secret

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvFallsBackPerField(t *testing.T) {
	t.Setenv(EnvAppKey, "0123456789abcdef")
	t.Setenv(EnvAppIV, "")
	t.Setenv(EnvCCESecret, "")
	t.Setenv(EnvCCEBase, "xyz")

	m := FromEnv()
	assert.Equal(t, "0123456789abcdef", m.AppKey)
	assert.Equal(t, defaultAppIV, m.AppIV)
	assert.Equal(t, defaultCCESecret, m.CCESecret)
	assert.Equal(t, "xyz", m.CCEBase)
	assert.True(t, m.IsDefault())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Material)
		want error
	}{
		{"default ok", func(*Material) {}, nil},
		{"24 byte key", func(m *Material) { m.AppKey = strings.Repeat("k", 24) }, nil},
		{"short key", func(m *Material) { m.AppKey = "short" }, ErrInvalidKey},
		{"short iv", func(m *Material) { m.AppIV = "iv" }, ErrInvalidIV},
		{"empty alphabet", func(m *Material) { m.CCEBase, m.CCESecret = "", "" }, ErrEmptyAlphabet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Default()
			tt.mod(&m)
			if tt.want == nil {
				assert.NoError(t, m.Validate())
				return
			}
			assert.ErrorIs(t, m.Validate(), tt.want)
		})
	}
}

func TestFromMap(t *testing.T) {
	m, err := FromMap(Default().Map())
	require.NoError(t, err)
	assert.Equal(t, Default(), m)

	vals := Default().Map()
	delete(vals, EnvCCEBase)
	_, err = FromMap(vals)
	assert.ErrorIs(t, err, ErrMissingMaterial)
}

func TestGenerate(t *testing.T) {
	m, err := Generate()
	require.NoError(t, err)
	assert.Len(t, m.AppKey, 32)
	assert.Len(t, m.AppIV, 32)
	assert.Len(t, m.CCESecret, 32)
	assert.Len(t, m.CCEBase, 50)
	assert.NoError(t, m.Validate())
	assert.False(t, m.IsDefault())

	for _, c := range m.CCEBase {
		assert.True(t, strings.ContainsRune(charPool, c), "unexpected char %q", c)
	}

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, m.AppKey, other.AppKey)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, plain := range []string{"a", "http://localhost:3000", strings.Repeat("x", 100)} {
		enc := Encode(plain, "passphrase")
		assert.NotEqual(t, hex.EncodeToString([]byte(plain)), enc)
		got, err := Decode(enc, "passphrase")
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("", "p")
	assert.Error(t, err)
	_, err = Decode("zz", "p")
	assert.Error(t, err)
}

func TestSealOpen(t *testing.T) {
	m, err := Generate()
	require.NoError(t, err)

	e := Seal(m, "passphrase", "shroud-client")
	require.False(t, e.Empty())

	got, err := e.Open("shroud-client")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	wrong, err := e.Open("renamed")
	require.NoError(t, err)
	assert.NotEqual(t, m, wrong)
}

func TestLDFlags(t *testing.T) {
	e := Seal(Default(), "pp", "bin")
	flags := e.LDFlags("main")
	assert.Contains(t, flags, "-X main.obfKey="+e.Key)
	assert.Contains(t, flags, "-X main.obfCCEBase="+e.CCEBase)
	assert.Equal(t, 5, strings.Count(flags, "-X "))
	assert.True(t, Embedded{}.Empty())
}
