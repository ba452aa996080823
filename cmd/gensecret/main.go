// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

// gensecret prepares the secret material shared by the secure service and
// its client.
//
// It reuses the four values in the .env file when all are present, otherwise
// generates a fresh set and writes it back. It then prints the -ldflags value
// that bakes the same material, obfuscated, into the client binary:
//
//	go build -ldflags "$(gensecret)" -o shroud-client ./cmd/client
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/jredh-dev/shroud/internal/logging"
	"github.com/jredh-dev/shroud/pkg/secret"
)

func main() {
	flags := pflag.NewFlagSet("gensecret", pflag.ExitOnError)
	defaultEnvFile := ".env"
	if v := os.Getenv("ENV_FILE"); v != "" {
		defaultEnvFile = v
	}
	envPath := flags.String("env-file", defaultEnvFile, "path of the .env file to read or create")
	rotate := flags.Bool("rotate", false, "generate new material even if the .env file has a complete set")
	binary := flags.String("binary", "shroud-client", "client binary name; the embedded material only opens under this name")
	passphrase := flags.String("passphrase", os.Getenv("SHROUD_OBF_PASSPHRASE"), "obfuscation passphrase (random when empty)")
	pkg := flags.String("pkg", "main", "package holding the obf* variables")
	flags.Parse(os.Args[1:]) //nolint:errcheck

	log := logging.New(os.Getenv("LOG_LEVEL"), logging.FormatConsole, "gensecret")

	m, ok, err := readEnvSecrets(*envPath)
	if err != nil {
		log.Fatal().Err(err).Msg("read existing secrets")
	}
	switch {
	case ok && !*rotate:
		log.Info().Str("path", *envPath).Msg("using existing secrets (no rotation)")
	default:
		if m, err = secret.Generate(); err != nil {
			log.Fatal().Err(err).Msg("generate secrets")
		}
		if err := writeEnvSecrets(*envPath, m); err != nil {
			log.Fatal().Err(err).Msg("write secrets")
		}
		log.Info().Str("path", *envPath).Msg("secrets generated")
	}

	if err := m.Validate(); err != nil {
		log.Fatal().Err(err).Msg("existing secrets are unusable; rerun with --rotate")
	}

	pass := *passphrase
	if pass == "" {
		g, err := secret.Generate()
		if err != nil {
			log.Fatal().Err(err).Msg("generate passphrase")
		}
		pass = g.CCESecret
	}

	flagsLine, err := ldflags(m, pass, *binary, *pkg)
	if err != nil {
		log.Fatal().Err(err).Msg("generation aborted")
	}
	log.Info().Str("binary", *binary).Msg("embedded material verified")
	fmt.Println(flagsLine)
}
