package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/gpyt/internal/shared"
)

// DefaultObjectKey is where [ObjectBackend] keeps the document when no key is configured.
const DefaultObjectKey = "gpyt/ledger.json"

// ObjectStore reads and writes whole objects. Get returns [shared.ErrRecordNotFound] for a missing key.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
}

// ObjectBackend stores the ledger as a single JSON object in a bucket, overwritten on every commit.
type ObjectBackend struct {
	store ObjectStore
	key   string
}

// NewObjectBackend creates a backend writing to key.
func NewObjectBackend(store ObjectStore, key string) *ObjectBackend {
	if key == "" {
		key = DefaultObjectKey
	}
	return &ObjectBackend{store: store, key: key}
}

// Load reads the document. A missing object is an empty ledger.
func (b *ObjectBackend) Load(ctx context.Context) (map[string]Entry, error) {
	data, err := b.store.Get(ctx, b.key)
	if errors.Is(err, shared.ErrRecordNotFound) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", b.key, err)
	}
	return Decode(data)
}

// Commit overwrites the document.
func (b *ObjectBackend) Commit(ctx context.Context, entries map[string]Entry) error {
	doc, err := Encode(entries)
	if err != nil {
		return err
	}
	return b.store.Put(ctx, b.key, doc, "application/json", map[string]string{
		"entries": fmt.Sprint(len(entries)),
	})
}
