// Package transport is the server side of the secure layer.
//
// For every request outside the excluded routes it:
//
//  1. rebuilds the session credential from the numbered headers into
//     Authorization: Bearer, removing any stale Authorization when it cannot;
//  2. replaces an enveloped request body with its plaintext;
//  3. strips the credential and timestamp headers;
//  4. envelopes 200 JSON responses. Other responses go out as plaintext.
package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jredh-dev/shroud/internal/credstore"
	"github.com/jredh-dev/shroud/pkg/cce"
	"github.com/jredh-dev/shroud/pkg/envelope"
	"github.com/jredh-dev/shroud/pkg/headercodec"
	"github.com/jredh-dev/shroud/services/secure/internal/audit"
	"github.com/jredh-dev/shroud/services/secure/internal/metrics"
)

// MaxBodyBytes caps the request body read by the layer.
const MaxBodyBytes = 1 << 20

// LayerErrorMessage is the body of a 500 raised by the layer itself.
const LayerErrorMessage = "Secure Layer Error"

// Config wires a Layer.
type Config struct {
	Cipher   *cce.Cipher
	Codec    *headercodec.Codec
	Sealer   *envelope.Sealer
	Excluded []string
	Metrics  *metrics.Metrics
	Sink     audit.Sink
	Logger   zerolog.Logger
}

// Layer is the secure transport middleware.
type Layer struct {
	cipher   *cce.Cipher
	codec    *headercodec.Codec
	sealer   *envelope.Sealer
	excluded map[string]bool
	metrics  *metrics.Metrics
	sink     audit.Sink
	log      zerolog.Logger
}

// New returns a Layer. Metrics and Sink may be nil.
func New(cfg Config) *Layer {
	l := &Layer{
		cipher:   cfg.Cipher,
		codec:    cfg.Codec,
		sealer:   cfg.Sealer,
		excluded: make(map[string]bool, len(cfg.Excluded)),
		metrics:  cfg.Metrics,
		sink:     cfg.Sink,
		log:      cfg.Logger,
	}
	for _, p := range cfg.Excluded {
		l.excluded[p] = true
	}
	return l
}

// Middleware wraps next with the secure layer.
func (l *Layer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if l.excluded[r.URL.Path] {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			l.record(r, metrics.KindPlain, ww.Status(), start, "")
			return
		}

		if err := l.prepare(r); err != nil {
			l.log.Error().Err(err).Str("path", r.URL.Path).Msg("secure layer critical error")
			writeJSONError(w, LayerErrorMessage, http.StatusInternalServerError)
			l.record(r, audit.KindLayerFailure, http.StatusInternalServerError, start, err.Error())
			return
		}

		rec := newCapture(w)
		next.ServeHTTP(rec, r)

		kind := l.finish(w, rec)
		l.record(r, kind, rec.statusCode(), start, "")
	})
}

// prepare rewrites r in place: credential, body, headers.
func (l *Layer) prepare(r *http.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if cred, ok := l.credential(r); ok {
		r.Header.Set("Authorization", "Bearer "+cred)
	} else {
		r.Header.Del("Authorization")
	}

	if err := l.unwrapBody(r); err != nil {
		return err
	}

	headercodec.Strip(r.Header)
	return nil
}

// credential rebuilds the session credential from the request headers.
func (l *Layer) credential(r *http.Request) (string, bool) {
	decoded, err := l.codec.Decode(r.Header)
	if err != nil {
		if errors.Is(err, headercodec.ErrMissingTimestamp) && !headercodec.HasPairs(r.Header) {
			l.countCredential(metrics.ResultNone)
			return "", false
		}
		l.log.Warn().Err(err).Str("path", r.URL.Path).Msg("credential headers rejected")
		if l.metrics != nil {
			l.metrics.ReplayRejected.Inc()
		}
		l.emit(r, audit.KindReplayRejected, err.Error())
		l.countCredential(metrics.ResultRejected)
		return "", false
	}

	if n := len(decoded.Rejected); n > 0 {
		if l.metrics != nil {
			l.metrics.HeaderPairsRejected.Add(float64(n))
		}
		l.emit(r, audit.KindPairsRejected, fmt.Sprintf("%d pairs", n))
	}
	if len(decoded.Entries) == 0 {
		l.countCredential(metrics.ResultNone)
		return "", false
	}

	cred, err := credstore.Reassemble(l.cipher, decoded.Entries)
	if err != nil {
		l.log.Warn().Err(err).Str("path", r.URL.Path).Msg("credential reassembly failed")
		l.countCredential(metrics.ResultIncomplete)
		return "", false
	}
	l.countCredential(metrics.ResultOK)
	return cred, true
}

// unwrapBody replaces an enveloped body with its plaintext. Bodies that are
// not envelopes pass through untouched.
func (l *Layer) unwrapBody(r *http.Request) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	r.Body.Close()
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return fmt.Errorf("request body exceeds %d bytes", MaxBodyBytes)
	}

	if env, ok := envelope.Parse(body); ok {
		plain, err := l.sealer.Open(env)
		if err != nil {
			l.log.Warn().Err(err).Str("path", r.URL.Path).Msg("body was enveloped but did not decrypt")
		} else {
			if !json.Valid([]byte(plain)) {
				l.log.Warn().Str("path", r.URL.Path).Msg("enveloped body is not JSON")
			}
			body = []byte(plain)
		}
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	return nil
}

// finish writes the captured response to w and returns its kind.
func (l *Layer) finish(w http.ResponseWriter, rec *capture) string {
	status := rec.statusCode()
	if status != http.StatusOK || !isJSON(w.Header()) {
		w.WriteHeader(status)
		w.Write(rec.buf.Bytes()) //nolint:errcheck
		if status != http.StatusOK {
			return metrics.KindError
		}
		return metrics.KindPlain
	}

	env := envelope.Envelope{Cipher: l.sealer.Encrypt(string(bytes.TrimRight(rec.buf.Bytes(), "\n")))}
	w.Header().Del("Content-Length")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
	return metrics.KindSecure
}

func (l *Layer) record(r *http.Request, kind string, status int, start time.Time, detail string) {
	if l.metrics != nil {
		label := kind
		if kind == audit.KindLayerFailure {
			label = metrics.KindError
		}
		l.metrics.Requests.WithLabelValues(label).Inc()
	}
	e := audit.NewEvent(kind, r.Method, r.URL.Path)
	e.Status = status
	e.DurationMS = time.Since(start).Milliseconds()
	e.Detail = detail
	l.publish(r, e)
}

func (l *Layer) emit(r *http.Request, kind, detail string) {
	e := audit.NewEvent(kind, r.Method, r.URL.Path)
	e.Detail = detail
	l.publish(r, e)
}

func (l *Layer) publish(r *http.Request, e audit.Event) {
	if l.sink == nil {
		return
	}
	e.RequestID = middleware.GetReqID(r.Context())
	if err := l.sink.Emit(r.Context(), e); err != nil {
		l.log.Warn().Err(err).Msg("audit emit failed")
	}
}

func (l *Layer) countCredential(result string) {
	if l.metrics != nil {
		l.metrics.CredentialsRebuilt.WithLabelValues(result).Inc()
	}
}

func isJSON(h http.Header) bool {
	return strings.HasPrefix(strings.ToLower(h.Get("Content-Type")), "application/json")
}

func writeJSONError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
