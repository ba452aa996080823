// Package credstore splits a session credential into cipher-protected chunks
// and keeps them in a kv.Store.
//
// Every record is stored as
//
//	Encrypt(hex(name)) -> Encrypt(hex(value))
//
// under the static alphabet. Names are chunk_<i> for the pieces and
// chunk_count for the piece count.
package credstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jredh-dev/shroud/internal/kv"
	"github.com/jredh-dev/shroud/pkg/cce"
)

const (
	// MinChunkSize is the smallest chunk length.
	MinChunkSize = 10
	// TargetHeaderCount is the number of chunks aimed for on long credentials.
	TargetHeaderCount = 25

	ChunkPrefix = "chunk_"
	CountName   = "chunk_count"
)

var (
	// ErrIncompleteCredential means a chunk or the count record is missing
	// or unreadable. No partial credential is ever returned.
	ErrIncompleteCredential = errors.New("credstore: incomplete credential")
	// ErrEmptyCredential is returned when saving an empty string.
	ErrEmptyCredential = errors.New("credstore: empty credential")
)

// StorageError wraps a failure of the underlying kv.Store.
type StorageError struct {
	Op   string
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("credstore: %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ChunkSize returns max(MinChunkSize, ceil(total/TargetHeaderCount)).
func ChunkSize(total int) int {
	size := (total + TargetHeaderCount - 1) / TargetHeaderCount
	if size < MinChunkSize {
		return MinChunkSize
	}
	return size
}

// Split cuts credential into ChunkSize pieces. Lengths count characters, not
// bytes; the last piece may be shorter.
func Split(credential string) []string {
	runes := []rune(credential)
	size := ChunkSize(len(runes))
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// ChunkName returns the logical name of chunk i.
func ChunkName(i int) string {
	return ChunkPrefix + strconv.Itoa(i)
}

// Store persists one credential.
type Store struct {
	kv     kv.Store
	cipher *cce.Cipher
	log    zerolog.Logger
}

// New returns a Store writing to backend with cipher's static alphabet.
func New(backend kv.Store, cipher *cce.Cipher, log zerolog.Logger) *Store {
	return &Store{kv: backend, cipher: cipher, log: log}
}

// StorageKey returns the kv key for a logical name.
func (s *Store) StorageKey(name string) string {
	return seal(s.cipher, name)
}

// Save replaces any stored credential with credential. The count record is
// written first, then all chunks concurrently. On error, partial state may
// remain; Load detects it.
func (s *Store) Save(ctx context.Context, credential string) error {
	if credential == "" {
		return ErrEmptyCredential
	}
	if err := s.Clear(ctx); err != nil {
		return err
	}

	chunks := Split(credential)
	if err := s.put(ctx, CountName, strconv.Itoa(len(chunks))); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			return s.put(gctx, ChunkName(i), chunk)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.log.Debug().
		Int("length", len([]rune(credential))).
		Int("chunk_size", ChunkSize(len([]rune(credential)))).
		Int("chunks", len(chunks)).
		Msg("credential stored")
	return nil
}

// Load returns the stored credential. ok is false when nothing is stored or
// the stored set is incomplete.
func (s *Store) Load(ctx context.Context) (string, bool, error) {
	var b strings.Builder
	ok, err := s.walk(ctx, func(_ int, _, storedValue string) error {
		v, err := open(s.cipher, storedValue)
		if err != nil {
			return err
		}
		b.WriteString(v)
		return nil
	})
	if err != nil || !ok {
		return "", false, err
	}
	return b.String(), true, nil
}

// Raw returns the stored records as kv key to kv value, count record
// included, ready for header encoding. Same failure rules as Load.
func (s *Store) Raw(ctx context.Context) (map[string]string, bool, error) {
	out := make(map[string]string)
	ok, err := s.walk(ctx, func(_ int, storageKey, storedValue string) error {
		out[storageKey] = storedValue
		return nil
	})
	if err != nil || !ok {
		return nil, false, err
	}
	countKey := s.StorageKey(CountName)
	countVal, _, err := s.kv.Get(ctx, countKey)
	if err != nil {
		return nil, false, &StorageError{Op: "get", Name: CountName, Err: err}
	}
	out[countKey] = countVal
	return out, true, nil
}

// Clear removes every chunk named by the count record and the count record
// itself. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	n, _, err := s.count(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := s.kv.Remove(gctx, s.StorageKey(ChunkName(i))); err != nil {
				return &StorageError{Op: "remove", Name: ChunkName(i), Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := s.kv.Remove(ctx, s.StorageKey(CountName)); err != nil {
		return &StorageError{Op: "remove", Name: CountName, Err: err}
	}
	return nil
}

// count reads the count record. ok is false when it is absent or invalid.
func (s *Store) count(ctx context.Context) (int, bool, error) {
	stored, found, err := s.kv.Get(ctx, s.StorageKey(CountName))
	if err != nil {
		return 0, false, &StorageError{Op: "get", Name: CountName, Err: err}
	}
	if !found {
		return 0, false, nil
	}
	raw, err := open(s.cipher, stored)
	if err != nil {
		s.log.Warn().Err(err).Msg("unreadable chunk count in storage")
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		s.log.Warn().Str("count", raw).Msg("invalid chunk count in storage")
		return 0, false, nil
	}
	return n, true, nil
}

// walk visits chunks 0..count-1 in order. It stops with ok=false at the
// first missing or undecodable chunk.
func (s *Store) walk(ctx context.Context, visit func(i int, storageKey, storedValue string) error) (bool, error) {
	n, ok, err := s.count(ctx)
	if err != nil || !ok {
		return false, err
	}
	for i := 0; i < n; i++ {
		key := s.StorageKey(ChunkName(i))
		stored, found, err := s.kv.Get(ctx, key)
		if err != nil {
			return false, &StorageError{Op: "get", Name: ChunkName(i), Err: err}
		}
		if !found {
			s.log.Warn().Int("chunk", i).Int("count", n).Msg("credential chunk missing, aborting load")
			return false, nil
		}
		if err := visit(i, key, stored); err != nil {
			s.log.Warn().Err(err).Int("chunk", i).Msg("credential chunk unreadable, aborting load")
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, name, value string) error {
	if err := s.kv.Set(ctx, s.StorageKey(name), seal(s.cipher, value)); err != nil {
		return &StorageError{Op: "set", Name: name, Err: err}
	}
	return nil
}

func seal(c *cce.Cipher, plain string) string {
	return c.Encrypt(hex.EncodeToString([]byte(plain)))
}

func open(c *cce.Cipher, stored string) (string, error) {
	b, err := hex.DecodeString(c.Decrypt(stored))
	if err != nil {
		return "", fmt.Errorf("decode stored value: %w", err)
	}
	return string(b), nil
}
