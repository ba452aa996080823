// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/jredh-dev/shroud/cmd/client/internal/app"
	"github.com/jredh-dev/shroud/internal/credstore"
	"github.com/jredh-dev/shroud/internal/kv"
	"github.com/jredh-dev/shroud/internal/logging"
	"github.com/jredh-dev/shroud/pkg/cce"
	"github.com/jredh-dev/shroud/pkg/envelope"
	"github.com/jredh-dev/shroud/pkg/headercodec"
	"github.com/jredh-dev/shroud/pkg/secret"
)

// Build-time embedded material. Set via the line gensecret prints:
//
//	-ldflags "-X main.obfKey=<hex> -X main.obfAppKey=<hex> -X main.obfAppIV=<hex> ..."
//
// obfKey = Encode(passphrase, binaryName); every other value is
// Encode(value, passphrase). Renaming the binary decodes to garbage.
//
// Dev mode: leave them empty; material comes from the environment (and the
// --env-file), falling back to the development defaults.
var (
	obfKey       string
	obfAppKey    string
	obfAppIV     string
	obfCCESecret string
	obfCCEBase   string
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const usage = `usage: shroud-client [flags] <command> [args]

commands:
  login <username>   request a token and store it
  profile            call the authenticated profile endpoint
  logout [--purge]   forget the stored token (--purge wipes the whole store)
  show               print the locally stored token
  version            print version information

flags:
`

func main() {
	flags := pflag.NewFlagSet("shroud-client", pflag.ExitOnError)
	serverURL := flags.String("server", envOr("SHROUD_SERVER", "http://localhost:5000"), "secure service base URL")
	backend := flags.String("store", envOr("KV_BACKEND", kv.BackendSQLite), "credential store backend: sqlite, memory or firestore")
	dbPath := flags.String("db", envOr("KV_SQLITE_PATH", defaultDBPath()), "sqlite database path")
	projectID := flags.String("firebase-project", os.Getenv("FIREBASE_PROJECT_ID"), "firebase project ID (firestore backend)")
	credsFile := flags.String("firebase-credentials", os.Getenv("FIREBASE_CREDENTIALS_PATH"), "firebase service account file (firestore backend)")
	collection := flags.String("firestore-collection", envOr("FIRESTORE_COLLECTION", kv.DefaultCollection), "firestore collection holding credential records")
	output := flags.StringP("output", "o", app.OutputText, "output format: text, json or yaml")
	envFile := flags.String("env-file", envOr("ENV_FILE", ".env"), "load secret material from this file if it exists (dev builds only)")
	trace := flags.BoolP("trace", "t", false, "print the request/response log after the command")
	purge := flags.Bool("purge", false, "with logout: clear every key in the store")
	logLevel := flags.String("log-level", envOr("LOG_LEVEL", "warn"), "log level")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	flags.Parse(os.Args[1:]) //nolint:errcheck

	log := logging.New(*logLevel, logging.FormatConsole, "client")

	cmd := flags.Arg(0)
	if cmd == "" {
		flags.Usage()
		os.Exit(2)
	}
	if cmd == "version" {
		fmt.Printf("shroud-client %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
		return
	}

	material, err := resolveMaterial(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("secret material")
	}
	if err := material.Validate(); err != nil {
		log.Fatal().Err(err).Msg("secret material")
	}
	if material.IsDefault() {
		log.Warn().Msg("using development secret material")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *backend == kv.BackendSQLite {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o700); err != nil {
			log.Fatal().Err(err).Msg("create store directory")
		}
	}
	store, err := kv.Open(ctx, kv.Config{
		Backend:    *backend,
		SQLitePath: *dbPath,
		Firestore: kv.FirestoreConfig{
			ProjectID:       *projectID,
			CredentialsPath: *credsFile,
			Collection:      *collection,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Str("backend", *backend).Msg("open credential store")
	}
	defer store.Close()

	cipher := cce.New(material.CCESecret, material.CCEBase)
	sealer, err := envelope.New(material.AppKey, material.AppIV)
	if err != nil {
		log.Fatal().Err(err).Msg("body envelope")
	}
	creds := credstore.New(store, cipher, log)
	client := app.NewSecureClient(*serverURL, sealer, headercodec.New(cipher), creds, log)

	out, err := run(ctx, client, creds, store, cmd, flags.Args()[1:], *purge)
	if *trace {
		app.Render(os.Stderr, *output, client.Entries()) //nolint:errcheck
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "shroud-client %s: %v\n", cmd, err)
		os.Exit(1)
	}
	if out != nil {
		if err := app.Render(os.Stdout, *output, out); err != nil {
			fmt.Fprintf(os.Stderr, "shroud-client: %v\n", err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, client *app.SecureClient, creds *credstore.Store, store kv.Store, cmd string, args []string, purge bool) (any, error) {
	switch cmd {
	case "login":
		if len(args) != 1 {
			return nil, fmt.Errorf("want exactly one username")
		}
		tok, err := client.Login(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return map[string]any{"user": args[0], "stored": true, "chunks": len(credstore.Split(tok))}, nil

	case "profile":
		return client.Profile(ctx)

	case "logout":
		if purge {
			return map[string]any{"purged": true}, store.ClearAll(ctx)
		}
		return map[string]any{"logged_out": true}, client.Logout(ctx)

	case "show":
		tok, ok, err := creds.Load(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("no complete token stored")
		}
		return map[string]any{"token": tok, "chunks": len(credstore.Split(tok))}, nil

	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// resolveMaterial prefers material baked in at build time. Dev builds read
// the environment after loading envFile.
func resolveMaterial(envFile string) (secret.Material, error) {
	embedded := secret.Embedded{
		Key:       obfKey,
		AppKey:    obfAppKey,
		AppIV:     obfAppIV,
		CCESecret: obfCCESecret,
		CCEBase:   obfCCEBase,
	}
	if !embedded.Empty() {
		return embedded.Open(filepath.Base(os.Args[0]))
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return secret.Material{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return secret.FromEnv(), nil
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "shroud-client.db"
	}
	return filepath.Join(dir, "shroud", "client.db")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
