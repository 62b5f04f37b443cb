// Package storage implements the artifact store: a flat namespace of
// slash-separated keys (for example "cross_val/fold_2/model") mapped to
// opaque blobs.
//
// Three backends are provided. FileStore keeps one file per key under a
// root directory, MemoryStore is for tests, and S3Store writes to a bucket.
// Every backend creates whatever namespace a Put needs; callers never
// create directories themselves.
package storage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// ErrNotFound is wrapped by the IOError returned from Get for a missing key.
var ErrNotFound = errors.New("artifact not found")

// Store is the artifact store contract.
type Store interface {
	// Put writes data under key, replacing any previous value. Readers
	// never observe a partially written value.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the value under key. A missing key is an IOError wrapping
	// ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether key holds a value.
	Exists(ctx context.Context, key string) (bool, error)
}

// ValidateKey rejects keys that could escape the store root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return errors.NewConfigurationErrorf("storage.ValidateKey", "invalid artifact key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, `\`) {
			return errors.NewConfigurationErrorf("storage.ValidateKey", "invalid artifact key %q", key)
		}
	}
	return nil
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// PutJSON stores v as indented JSON.
func PutJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewIOError("storage.PutJSON", key, err)
	}
	return s.Put(ctx, key, data)
}

// GetJSON loads key and decodes it into v. Numbers are decoded as float64.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewIOError("storage.GetJSON", key, errors.Wrap(err, "decode"))
	}
	return nil
}
