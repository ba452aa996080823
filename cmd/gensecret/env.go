// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/jredh-dev/shroud/pkg/secret"
)

// readEnvSecrets returns the material in path. ok is false when the file is
// missing or lacks any of the four keys.
func readEnvSecrets(path string) (m secret.Material, ok bool, err error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return secret.Material{}, false, nil
	}
	if err != nil {
		return secret.Material{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	m, err = secret.FromMap(vals)
	if errors.Is(err, secret.ErrMissingMaterial) {
		return secret.Material{}, false, nil
	}
	if err != nil {
		return secret.Material{}, false, err
	}
	return m, true, nil
}

// writeEnvSecrets merges m into path, keeping every other variable already
// there.
func writeEnvSecrets(path string, m secret.Material) error {
	vals, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		vals = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for k, v := range m.Map() {
		vals[k] = v
	}
	if err := godotenv.Write(vals, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// ldflags seals m for binary and checks that the sealed form opens back to m
// before returning the -ldflags value.
func ldflags(m secret.Material, passphrase, binary, pkg string) (string, error) {
	embedded := secret.Seal(m, passphrase, binary)
	got, err := embedded.Open(binary)
	if err != nil {
		return "", fmt.Errorf("verify: %w", err)
	}
	for _, k := range secret.Keys {
		if got.Map()[k] != m.Map()[k] {
			return "", fmt.Errorf("verify: %s does not round-trip", k)
		}
	}
	return embedded.LDFlags(pkg), nil
}
