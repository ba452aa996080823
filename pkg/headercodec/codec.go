// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

// Package headercodec spreads a map of stored credential entries across
// numbered HTTP headers and reverses the process on the receiving side.
//
// Each entry becomes one header:
//
//	<seq>-<hex(enc(key|ts, keySalt))>: enc(value|ts, valueSalt)
//
// plus a single timestamp header. The receiver rejects the whole set when the
// timestamp is missing or outside the replay window, and drops individual
// pairs that fail to verify under either salt ordering.
package headercodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jredh-dev/shroud/pkg/cce"
)

// TimestampHeader carries the request timestamp in decimal milliseconds. The
// credential headers and the body envelope share it.
const TimestampHeader = "X-Request-Timestamp"

// DefaultWindow is the accepted clock skew in either direction.
const DefaultWindow = 30 * time.Second

var (
	// ErrMissingTimestamp means the timestamp header was absent or not an integer.
	ErrMissingTimestamp = errors.New("headercodec: missing or invalid timestamp")
	// ErrReplayRejected means the timestamp fell outside the replay window.
	ErrReplayRejected = errors.New("headercodec: timestamp outside replay window")
)

var (
	pairName   = regexp.MustCompile(`^(\d+)-(.+)$`)
	pairPrefix = regexp.MustCompile(`^\d+-`)
)

// Pair is one encoded header.
type Pair struct {
	Seq   int
	Name  string
	Value string
}

// Decoded is the result of a successful Decode.
type Decoded struct {
	Timestamp int64
	// Entries maps decoded keys to decoded values.
	Entries map[string]string
	// Rejected lists the sequence numbers of pairs that failed verification.
	Rejected []int
	// Duplicates lists keys that appeared more than once; the higher
	// sequence number won.
	Duplicates []string
}

// Codec encodes and decodes header pairs with a shared cipher.
type Codec struct {
	cipher *cce.Cipher
	window time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(c *Codec) { c.window = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithLogger sets the logger used for per-pair warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Codec) { c.log = l }
}

// New returns a Codec using cipher for both salted passes. The cipher's base
// alphabet is the salt source.
func New(cipher *cce.Cipher, opts ...Option) *Codec {
	c := &Codec{
		cipher: cipher,
		window: DefaultWindow,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode turns entries into header pairs for timestamp ts (milliseconds).
// Map iteration order decides indices, so the output order varies between
// calls; Decode does not depend on it.
func (c *Codec) Encode(entries map[string]string, ts int64) []Pair {
	digits := strconv.FormatInt(ts, 10)
	suffix := "|" + digits
	saltA, saltB := cce.DeriveSalts(digits, c.cipher.Base())

	pairs := make([]Pair, 0, len(entries))
	i := 0
	for key, value := range entries {
		keySalt, valSalt := cce.SaltOrder(i, saltA, saltB)
		encKey := c.cipher.EncryptWith(key+suffix, keySalt)
		encVal := c.cipher.EncryptWith(value+suffix, valSalt)
		seq := cce.Sequence(i, len(entries), ts)
		pairs = append(pairs, Pair{
			Seq:   seq,
			Name:  strconv.Itoa(seq) + "-" + hex.EncodeToString([]byte(encKey)),
			Value: encVal,
		})
		i++
	}
	return pairs
}

// Apply writes pairs and the timestamp header onto h.
func Apply(h http.Header, pairs []Pair, ts int64) {
	for _, p := range pairs {
		h.Set(p.Name, p.Value)
	}
	h.Set(TimestampHeader, strconv.FormatInt(ts, 10))
}

// Decode reconstructs the entry map from h using the current time. It returns
// ErrMissingTimestamp or ErrReplayRejected, and no entries, when the
// timestamp gate fails.
func (c *Codec) Decode(h http.Header) (*Decoded, error) {
	return c.DecodeAt(h, c.now())
}

// DecodeAt is Decode evaluated at now.
func (c *Codec) DecodeAt(h http.Header, now time.Time) (*Decoded, error) {
	digits := strings.TrimSpace(h.Get(TimestampHeader))
	if digits == "" {
		return nil, ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingTimestamp, digits)
	}
	skew := now.UnixMilli() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > c.window.Milliseconds() {
		return nil, fmt.Errorf("%w: skew %dms", ErrReplayRejected, skew)
	}

	suffix := "|" + digits
	saltA, saltB := cce.DeriveSalts(digits, c.cipher.Base())

	type accepted struct {
		seq        int
		name       string
		key, value string
	}
	var (
		ok  []accepted
		out = &Decoded{Timestamp: ts, Entries: make(map[string]string)}
	)
	for name, values := range h {
		m := pairName.FindStringSubmatch(name)
		if m == nil || len(values) == 0 {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		rawKey, err := hex.DecodeString(m[2])
		if err != nil {
			c.reject(out, seq, "header name is not hex")
			continue
		}
		encKey, encVal := string(rawKey), values[0]

		key, value, verified := c.verify(encKey, encVal, saltA, saltB, suffix)
		if !verified {
			key, value, verified = c.verify(encKey, encVal, saltB, saltA, suffix)
		}
		if !verified {
			c.reject(out, seq, "header pair failed verification")
			continue
		}
		ok = append(ok, accepted{seq: seq, name: name, key: key, value: value})
	}

	sort.Slice(ok, func(i, j int) bool {
		if ok[i].seq != ok[j].seq {
			return ok[i].seq < ok[j].seq
		}
		return ok[i].name < ok[j].name
	})
	for _, a := range ok {
		if _, dup := out.Entries[a.key]; dup {
			c.log.Warn().Int("seq", a.seq).Msg("duplicate header key, overwriting earlier value")
			out.Duplicates = append(out.Duplicates, a.key)
		}
		out.Entries[a.key] = a.value
	}
	sort.Ints(out.Rejected)
	return out, nil
}

func (c *Codec) verify(encKey, encVal, keySalt, valSalt, suffix string) (string, string, bool) {
	key := c.cipher.DecryptWith(encKey, keySalt)
	if !strings.HasSuffix(key, suffix) {
		return "", "", false
	}
	value := c.cipher.DecryptWith(encVal, valSalt)
	if !strings.HasSuffix(value, suffix) {
		return "", "", false
	}
	return strings.TrimSuffix(key, suffix), strings.TrimSuffix(value, suffix), true
}

func (c *Codec) reject(out *Decoded, seq int, msg string) {
	c.log.Warn().Int("seq", seq).Msg(msg)
	out.Rejected = append(out.Rejected, seq)
}

// HasPairs reports whether h carries any numbered credential header.
func HasPairs(h http.Header) bool {
	for name := range h {
		if pairPrefix.MatchString(name) {
			return true
		}
	}
	return false
}

// Strip removes every numbered credential header and the timestamp header.
func Strip(h http.Header) {
	for name := range h {
		if pairPrefix.MatchString(name) {
			delete(h, name)
		}
	}
	h.Del(TimestampHeader)
}
