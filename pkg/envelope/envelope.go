// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

// Package envelope wraps request and response bodies in a single AES-CBC
// ciphertext:
//
//	{"cipher": "<base64(AES-CBC-PKCS7(payload))>"}
//
// Key and IV are the UTF-8 bytes of the shared secret values, which keeps the
// output interoperable with CryptoJS.AES.encrypt(data, Utf8.parse(key), {iv}).
// Neither peer applies the substitution cipher to bodies.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// IVSize is the number of IV bytes used.
const IVSize = aes.BlockSize

var (
	// ErrNoCipher means the envelope carried no ciphertext ("no body").
	ErrNoCipher = errors.New("envelope: no cipher")
	// ErrDecrypt means the ciphertext was malformed or encrypted under
	// different material.
	ErrDecrypt = errors.New("envelope: decrypt failed")
)

// Envelope is the wire form of an encrypted body.
type Envelope struct {
	Cipher string `json:"cipher"`
}

// Sealer encrypts and decrypts envelope payloads. Safe for concurrent use.
type Sealer struct {
	block cipher.Block
	iv    []byte
}

// New returns a Sealer for the given key (16, 24 or 32 bytes) and IV (at
// least 16 bytes; only the first 16 are used).
func New(key, iv string) (*Sealer, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("envelope: key: %w", err)
	}
	if len(iv) < IVSize {
		return nil, fmt.Errorf("envelope: iv must be at least %d bytes, got %d", IVSize, len(iv))
	}
	return &Sealer{block: block, iv: []byte(iv)[:IVSize]}, nil
}

// Encrypt returns base64(AES-CBC(PKCS7(plaintext))).
func (s *Sealer) Encrypt(plaintext string) string {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(s.block, s.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt.
func (s *Sealer) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrDecrypt, len(raw))
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(s.block, s.iv).CryptBlocks(out, raw)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Wrap encrypts payload. Strings and raw JSON are used verbatim, anything
// else is JSON-encoded first.
func (s *Sealer) Wrap(payload any) (Envelope, error) {
	var plain string
	switch p := payload.(type) {
	case string:
		plain = p
	case []byte:
		plain = string(p)
	case json.RawMessage:
		plain = string(p)
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("envelope: marshal payload: %w", err)
		}
		plain = string(b)
	}
	return Envelope{Cipher: s.Encrypt(plain)}, nil
}

// Open decrypts env and returns the plaintext.
func (s *Sealer) Open(env Envelope) (string, error) {
	if env.Cipher == "" {
		return "", ErrNoCipher
	}
	return s.Decrypt(env.Cipher)
}

// Unwrap decrypts env and parses the plaintext as JSON, falling back to the
// raw string when it is not JSON.
func (s *Sealer) Unwrap(env Envelope) (any, error) {
	plain, err := s.Open(env)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(plain), &v); err != nil {
		return plain, nil
	}
	return v, nil
}

// Parse reads an envelope from a JSON body. ok is false when the body is not
// an envelope or carries no cipher string.
func Parse(body []byte) (env Envelope, ok bool) {
	var probe struct {
		Cipher any `json:"cipher"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return Envelope{}, false
	}
	c, isString := probe.Cipher.(string)
	if !isString || c == "" {
		return Envelope{}, false
	}
	return Envelope{Cipher: c}, true
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrDecrypt)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return b[:len(b)-n], nil
}
