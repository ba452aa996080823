// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

// Package secret holds the shared secret material both peers of the secure
// transport must agree on, byte for byte.
//
// Nothing in the protocol verifies that the two sides hold the same values.
// A mismatch does not fail loudly: every cipher operation simply produces
// garbage, headers stop verifying, and requests arrive unauthenticated.
package secret

import (
	"errors"
	"fmt"
	"os"
)

// Environment variable names, shared by the server, the client and gensecret.
const (
	EnvAppKey    = "APP_KEY"
	EnvAppIV     = "APP_IV"
	EnvCCESecret = "CCE_SECRET"
	EnvCCEBase   = "CCE_BASE"
)

// Development fallbacks. Never use these outside local testing.
const (
	defaultAppKey    = "yoursecretkey123"
	defaultAppIV     = "yoursecretiv1234"
	defaultCCESecret = "secretcce"
	defaultCCEBase   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Keys lists the material variables in their canonical order.
var Keys = []string{EnvAppKey, EnvAppIV, EnvCCESecret, EnvCCEBase}

var (
	ErrInvalidKey      = errors.New("secret: APP_KEY must be 16, 24 or 32 bytes")
	ErrInvalidIV       = errors.New("secret: APP_IV must be at least 16 bytes")
	ErrEmptyAlphabet   = errors.New("secret: CCE_BASE and CCE_SECRET must not both be empty")
	ErrMissingMaterial = errors.New("secret: missing material")
)

// Material is the secret configuration loaded once at process start.
type Material struct {
	AppKey    string // body envelope key (UTF-8 bytes used as the AES key)
	AppIV     string // body envelope IV (first 16 UTF-8 bytes)
	CCESecret string // substitution cipher secret
	CCEBase   string // substitution cipher base alphabet
}

// Default returns the development material.
func Default() Material {
	return Material{
		AppKey:    defaultAppKey,
		AppIV:     defaultAppIV,
		CCESecret: defaultCCESecret,
		CCEBase:   defaultCCEBase,
	}
}

// FromEnv reads material from environment variables. Each unset variable falls
// back to its development default.
func FromEnv() Material {
	d := Default()
	return Material{
		AppKey:    getEnv(EnvAppKey, d.AppKey),
		AppIV:     getEnv(EnvAppIV, d.AppIV),
		CCESecret: getEnv(EnvCCESecret, d.CCESecret),
		CCEBase:   getEnv(EnvCCEBase, d.CCEBase),
	}
}

// FromMap builds material from a key/value map such as a parsed .env file.
// All four keys must be present and non-empty.
func FromMap(vals map[string]string) (Material, error) {
	for _, k := range Keys {
		if vals[k] == "" {
			return Material{}, fmt.Errorf("%w: %s", ErrMissingMaterial, k)
		}
	}
	return Material{
		AppKey:    vals[EnvAppKey],
		AppIV:     vals[EnvAppIV],
		CCESecret: vals[EnvCCESecret],
		CCEBase:   vals[EnvCCEBase],
	}, nil
}

// Map returns the material keyed by environment variable name.
func (m Material) Map() map[string]string {
	return map[string]string{
		EnvAppKey:    m.AppKey,
		EnvAppIV:     m.AppIV,
		EnvCCESecret: m.CCESecret,
		EnvCCEBase:   m.CCEBase,
	}
}

// IsDefault reports whether any field still holds its development default.
func (m Material) IsDefault() bool {
	d := Default()
	return m.AppKey == d.AppKey || m.AppIV == d.AppIV ||
		m.CCESecret == d.CCESecret || m.CCEBase == d.CCEBase
}

// Validate checks the constraints the envelope and cipher rely on.
func (m Material) Validate() error {
	switch len(m.AppKey) {
	case 16, 24, 32:
	default:
		return ErrInvalidKey
	}
	if len(m.AppIV) < 16 {
		return ErrInvalidIV
	}
	if m.CCEBase == "" && m.CCESecret == "" {
		return ErrEmptyAlphabet
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
