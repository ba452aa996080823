// Package kv is the key-value primitive the credential store persists to.
//
// Backends offer single-key get/set/remove and a full clear. There is no
// atomicity across keys; callers must tolerate partially written state.
package kv

import (
	"context"
	"fmt"
)

// Store is a string key-value store.
type Store interface {
	// Get returns the value for key. ok is false when key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// ClearAll deletes every key.
	ClearAll(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	SQLitePath string
	Firestore  FirestoreConfig
}

// Open returns the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendFirestore:
		f, err := OpenFirestore(ctx, cfg.Firestore)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}
}
