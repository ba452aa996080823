// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

// Package cce implements the keyed positional substitution cipher used to
// obscure credential chunks and header pairs.
//
// The alphabet is the base alphabet followed by the cipher secret, duplicates
// removed in first-occurrence order. A character at 0-based position i of an
// input of length n moves ((i+1)^(i+1) mod M + n) mod M places through the
// alphabet, M being its size. Characters outside the alphabet pass through.
//
// The cipher is deterministic and carries no integrity check. Decrypting with
// the wrong secret, the wrong alphabet, or a ciphertext of a different length
// yields garbage rather than an error.
package cce

import (
	"math/big"
	"strings"
)

// Cipher holds the substitution secret and the default base alphabet.
// A Cipher is immutable and safe for concurrent use.
type Cipher struct {
	secret string
	base   string

	// alphabet for base, computed once.
	defaultAlphabet *alphabet
}

// New returns a Cipher for the given substitution secret and default base
// alphabet.
func New(secret, base string) *Cipher {
	c := &Cipher{secret: secret, base: base}
	c.defaultAlphabet = c.build(base)
	return c
}

// Base returns the default base alphabet.
func (c *Cipher) Base() string { return c.base }

// Alphabet returns the key-character alphabet derived from base and the
// cipher secret.
func (c *Cipher) Alphabet(base string) []rune {
	a := c.build(base)
	out := make([]rune, len(a.chars))
	copy(out, a.chars)
	return out
}

// Encrypt encrypts text under the default base alphabet.
func (c *Cipher) Encrypt(text string) string {
	return c.defaultAlphabet.apply(text, 1)
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(text string) string {
	return c.defaultAlphabet.apply(text, -1)
}

// EncryptWith encrypts text under the alphabet derived from base, typically a
// per-request salt.
func (c *Cipher) EncryptWith(text, base string) string {
	return c.build(base).apply(text, 1)
}

// DecryptWith reverses EncryptWith.
func (c *Cipher) DecryptWith(text, base string) string {
	return c.build(base).apply(text, -1)
}

type alphabet struct {
	chars []rune
	index map[rune]int
}

func (c *Cipher) build(base string) *alphabet {
	a := &alphabet{index: make(map[rune]int, len(base)+len(c.secret))}
	for _, r := range base + c.secret {
		if _, seen := a.index[r]; seen {
			continue
		}
		a.index[r] = len(a.chars)
		a.chars = append(a.chars, r)
	}
	return a
}

// apply shifts every in-alphabet rune of text forward (dir=1) or backward
// (dir=-1).
func (a *alphabet) apply(text string, dir int) string {
	runes := []rune(text)
	m := len(a.chars)
	n := len(runes)

	var b strings.Builder
	b.Grow(len(text))
	for i, r := range runes {
		idx, ok := a.index[r]
		if !ok {
			b.WriteRune(r)
			continue
		}
		s := shift(i, n, m)
		b.WriteRune(a.chars[((idx+dir*s)%m+m)%m])
	}
	return b.String()
}

// shift returns ((i+1)^(i+1) mod m + n) mod m. Zero when m <= 1.
func shift(i, n, m int) int {
	if m <= 1 {
		return 0
	}
	k := big.NewInt(int64(i + 1))
	mod := big.NewInt(int64(m))
	p := new(big.Int).Exp(k, k, mod)
	return int((p.Int64() + int64(n)) % int64(m))
}
