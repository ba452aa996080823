package kv

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultCollection holds credential records when none is configured.
const DefaultCollection = "shroud_kv"

// FirestoreConfig configures the Firestore backend. With
// FIRESTORE_EMULATOR_HOST set the client talks to the emulator and
// CredentialsPath may be empty.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsPath string
	Collection      string
}

// Firestore is a Store keeping one document per key.
type Firestore struct {
	client *firestore.Client
	col    *firestore.CollectionRef
}

type record struct {
	Key   string `firestore:"key"`
	Value string `firestore:"value"`
}

// OpenFirestore initializes a Firebase app and its Firestore client.
func OpenFirestore(ctx context.Context, cfg FirestoreConfig) (*Firestore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("kv: firestore project id is empty")
	}
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}
	name := cfg.Collection
	if name == "" {
		name = DefaultCollection
	}
	return &Firestore{client: client, col: client.Collection(name)}, nil
}

// Keys are hex encoded so any string is a valid document ID.
func (f *Firestore) doc(key string) *firestore.DocumentRef {
	return f.col.Doc(hex.EncodeToString([]byte(key)))
}

func (f *Firestore) Get(ctx context.Context, key string) (string, bool, error) {
	snap, err := f.doc(key).Get(ctx)
	if snap != nil && !snap.Exists() {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var r record
	if err := snap.DataTo(&r); err != nil {
		return "", false, fmt.Errorf("decode record: %w", err)
	}
	return r.Value, true, nil
}

func (f *Firestore) Set(ctx context.Context, key, value string) error {
	_, err := f.doc(key).Set(ctx, record{Key: key, Value: value})
	return err
}

func (f *Firestore) Remove(ctx context.Context, key string) error {
	_, err := f.doc(key).Delete(ctx)
	return err
}

func (f *Firestore) ClearAll(ctx context.Context) error {
	iter := f.col.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return err
		}
	}
}

func (f *Firestore) Close() error {
	return f.client.Close()
}
