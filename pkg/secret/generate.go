// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package secret

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// charPool is the alphabet generated secrets are drawn from.
const charPool = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generated lengths. The base alphabet is longer so the substitution space
// stays large after deduplication.
const (
	keyLength       = 32
	ivLength        = 32
	cceSecretLength = 32
	cceBaseLength   = 50
)

// Generate returns fresh random material.
func Generate() (Material, error) {
	var m Material
	var err error
	if m.AppKey, err = randomString(keyLength); err != nil {
		return Material{}, err
	}
	if m.AppIV, err = randomString(ivLength); err != nil {
		return Material{}, err
	}
	if m.CCESecret, err = randomString(cceSecretLength); err != nil {
		return Material{}, err
	}
	if m.CCEBase, err = randomString(cceBaseLength); err != nil {
		return Material{}, err
	}
	return m, nil
}

func randomString(n int) (string, error) {
	poolLen := big.NewInt(int64(len(charPool)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, poolLen)
		if err != nil {
			return "", fmt.Errorf("generate random index: %w", err)
		}
		out[i] = charPool[idx.Int64()]
	}
	return string(out), nil
}
