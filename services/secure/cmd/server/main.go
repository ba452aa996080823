// shroud - split-header credential transport
// Copyright (C) 2026  shroud contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/jredh-dev/shroud/internal/logging"
	"github.com/jredh-dev/shroud/pkg/cce"
	"github.com/jredh-dev/shroud/pkg/envelope"
	"github.com/jredh-dev/shroud/pkg/headercodec"
	"github.com/jredh-dev/shroud/services/secure/config"
	"github.com/jredh-dev/shroud/services/secure/internal/audit"
	"github.com/jredh-dev/shroud/services/secure/internal/handlers"
	"github.com/jredh-dev/shroud/services/secure/internal/metrics"
	"github.com/jredh-dev/shroud/services/secure/internal/server"
	"github.com/jredh-dev/shroud/services/secure/internal/token"
	"github.com/jredh-dev/shroud/services/secure/internal/transport"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	flags := pflag.NewFlagSet("shroud-server", pflag.ExitOnError)
	showVersion := flags.Bool("version", false, "Show version information")
	defaultEnvFile := ".env"
	if v := os.Getenv("ENV_FILE"); v != "" {
		defaultEnvFile = v
	}
	envFile := flags.String("env-file", defaultEnvFile, "Load environment variables from this file if it exists")
	flags.Parse(os.Args[1:]) //nolint:errcheck

	if *showVersion {
		fmt.Printf("shroud-server %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
		os.Exit(0)
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}
	cfg := config.Load()
	logFor := func(component string) zerolog.Logger {
		return logging.New(cfg.Log.Level, cfg.Log.Format, component)
	}
	log := logFor("server")

	if err := cfg.Secret.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid secret material")
	}
	if cfg.Secret.IsDefault() {
		log.Warn().Msg("using built-in default secret material; run gensecret and set APP_KEY, APP_IV, CCE_SECRET, CCE_BASE")
	}

	if cfg.JWT.SigningKey == "" {
		key, err := token.GenerateSigningKey()
		if err != nil {
			log.Fatal().Err(err).Msg("generate signing key")
		}
		log.Warn().Msg("JWT_SIGNING_KEY is empty; using an ephemeral key, tokens will not survive a restart")
		cfg.JWT.SigningKey = key
	}

	sealer, err := envelope.New(cfg.Secret.AppKey, cfg.Secret.AppIV)
	if err != nil {
		log.Fatal().Err(err).Msg("body envelope")
	}
	cipher := cce.New(cfg.Secret.CCESecret, cfg.Secret.CCEBase)
	codec := headercodec.New(cipher,
		headercodec.WithWindow(cfg.Security.ReplayWindow),
		headercodec.WithLogger(logFor("headercodec")),
	)

	var sink audit.Sink = audit.NewLogSink(logFor("audit"))
	if len(cfg.Audit.KafkaBrokers) > 0 {
		sink = audit.Multi{sink, audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.Topic, logFor("kafka"))}
		log.Info().Strs("brokers", cfg.Audit.KafkaBrokers).Str("topic", cfg.Audit.Topic).Msg("audit events published to kafka")
	}

	m := metrics.New()
	tokens := token.New(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.TTL)

	s := server.New(log)
	s.Routes(server.Deps{
		Layer: transport.New(transport.Config{
			Cipher:   cipher,
			Codec:    codec,
			Sealer:   sealer,
			Excluded: cfg.Security.ExcludedRoutes,
			Metrics:  m,
			Sink:     sink,
			Logger:   logFor("transport"),
		}),
		Handlers: handlers.New(tokens, log),
		Tokens:   tokens,
		Metrics:  m,
	})
	s.OnStop(func() {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Msg("close audit sink")
		}
	})

	log.Info().
		Str("version", version).
		Str("env", cfg.Server.Env).
		Dur("replay_window", cfg.Security.ReplayWindow).
		Strs("excluded", cfg.Security.ExcludedRoutes).
		Msg("shroud-server configured")

	if err := s.ListenAndServe(":" + cfg.Server.Port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
