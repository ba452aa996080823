// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package secret

// XOR obfuscation for material baked into client binaries.
//
// The client needs the same material as the server but should not carry it in
// plaintext in its data section. gensecret encodes each value with a
// passphrase and prints an -ldflags line:
//
//	-X main.obfKey=<hex> -X main.obfAppKey=<hex> ...
//
// where obfKey = Encode(passphrase, binaryName) and every other value is
// Encode(value, passphrase). Renaming the binary decodes to garbage.
//
// Threat model: raises the bar against `strings` and casual static analysis.
// Does NOT protect against anyone with a debugger and the binary.
//
// Wire format:
//   encoded = hex( xor(plaintext, stretch(passphrase)) )

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Embedded is the obfuscated form of a Material as set through -ldflags.
type Embedded struct {
	Key       string
	AppKey    string
	AppIV     string
	CCESecret string
	CCEBase   string
}

// Seal obfuscates m for embedding into a binary named binaryName.
func Seal(m Material, passphrase, binaryName string) Embedded {
	return Embedded{
		Key:       Encode(passphrase, binaryName),
		AppKey:    Encode(m.AppKey, passphrase),
		AppIV:     Encode(m.AppIV, passphrase),
		CCESecret: Encode(m.CCESecret, passphrase),
		CCEBase:   Encode(m.CCEBase, passphrase),
	}
}

// Empty reports whether no material was baked in (dev builds).
func (e Embedded) Empty() bool {
	return e.Key == "" || e.AppKey == "" || e.AppIV == "" || e.CCESecret == "" || e.CCEBase == ""
}

// Open recovers the material. binaryName must match the name used by Seal.
func (e Embedded) Open(binaryName string) (Material, error) {
	passphrase, err := Decode(e.Key, binaryName)
	if err != nil {
		return Material{}, fmt.Errorf("key: %w", err)
	}
	var m Material
	fields := []struct {
		name string
		enc  string
		dst  *string
	}{
		{EnvAppKey, e.AppKey, &m.AppKey},
		{EnvAppIV, e.AppIV, &m.AppIV},
		{EnvCCESecret, e.CCESecret, &m.CCESecret},
		{EnvCCEBase, e.CCEBase, &m.CCEBase},
	}
	for _, f := range fields {
		v, err := Decode(f.enc, passphrase)
		if err != nil {
			return Material{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return m, nil
}

// LDFlags renders the -X assignments for the variables of package pkg
// (usually "main").
func (e Embedded) LDFlags(pkg string) string {
	parts := []string{
		fmt.Sprintf("-X %s.obfKey=%s", pkg, e.Key),
		fmt.Sprintf("-X %s.obfAppKey=%s", pkg, e.AppKey),
		fmt.Sprintf("-X %s.obfAppIV=%s", pkg, e.AppIV),
		fmt.Sprintf("-X %s.obfCCESecret=%s", pkg, e.CCESecret),
		fmt.Sprintf("-X %s.obfCCEBase=%s", pkg, e.CCEBase),
	}
	return strings.Join(parts, " ")
}

// Decode decodes a hex-encoded XOR-obfuscated value using the given passphrase.
// Returns an error if the encoded value is empty (treat as "not set") or
// malformed.
func Decode(encoded, passphrase string) (string, error) {
	if encoded == "" {
		return "", fmt.Errorf("obf: encoded value is empty")
	}
	ciphertext, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("obf: invalid hex: %w", err)
	}
	key := stretchKey(passphrase, len(ciphertext))
	return string(xorBytes(ciphertext, key)), nil
}

// Encode encodes a plaintext value using the given passphrase.
func Encode(plaintext, passphrase string) string {
	plain := []byte(plaintext)
	key := stretchKey(passphrase, len(plain))
	return hex.EncodeToString(xorBytes(plain, key))
}

// stretchKey derives n key bytes from a passphrase with SHA-256 in counter
// mode. Good enough for obfuscation, not a KDF.
func stretchKey(passphrase string, n int) []byte {
	key := make([]byte, 0, n)
	counter := uint32(0)
	for len(key) < n {
		h := sha256.New()
		h.Write([]byte(passphrase))
		h.Write([]byte{byte(counter >> 24), byte(counter >> 16), byte(counter >> 8), byte(counter)})
		key = append(key, h.Sum(nil)...)
		counter++
	}
	return key[:n]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
