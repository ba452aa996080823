// shroud - split-header credential transport
// Copyright (C) 2026  shroud contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package audit records secure-layer decisions. Events carry request
// metadata only, never bodies, credentials or header values.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"
)

// Event kinds beyond the response kinds (secure, plain, error).
const (
	KindReplayRejected = "replay_rejected"
	KindPairsRejected  = "pairs_rejected"
	KindLayerFailure   = "layer_failure"
)

// Event is one audit record.
//
// JSON schema:
//
//	{
//	  "id":          "550e8400-e29b-41d4-a716-446655440000",
//	  "time":        "2026-01-02T15:04:05Z",
//	  "kind":        "secure",
//	  "method":      "GET",
//	  "path":        "/api/profile",
//	  "status":      200,
//	  "duration_ms": 3
//	}
type Event struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	RequestID  string    `json:"request_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// NewEvent fills in ID and Time.
func NewEvent(kind, method, path string) Event {
	return Event{
		ID:     uuid.NewString(),
		Time:   time.Now().UTC(),
		Kind:   kind,
		Method: method,
		Path:   path,
	}
}

// Sink receives audit events. Emit must not block request handling for long.
type Sink interface {
	Emit(ctx context.Context, e Event) error
	Close() error
}

// LogSink writes events as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a Sink writing to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, e Event) error {
	ev := s.log.Info()
	if e.Kind == KindLayerFailure {
		ev = s.log.Error()
	}
	ev.Str("kind", e.Kind).
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Int64("duration_ms", e.DurationMS).
		Str("request_id", e.RequestID).
		Str("detail", e.Detail).
		Msg("secure layer")
	return nil
}

func (s *LogSink) Close() error { return nil }

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes JSON-encoded events to a Kafka topic, keyed by event
// ID. Writes are asynchronous; delivery failures are logged by the writer.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a KafkaSink for the given brokers and topic.
func NewKafkaSink(brokers []string, topic string, log zerolog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Str("topic", topic).Msgf(msg, args...)
		}),
	}
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Emit(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.ID), Value: b})
}

// Close flushes pending messages.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
