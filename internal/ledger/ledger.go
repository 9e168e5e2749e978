package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/shared"
)

// Entry is the value stored under a source key. CreatedAt is zero for entries persisted without one.
type Entry struct {
	Ref       string
	CreatedAt time.Time
}

// Backend persists the whole mapping as one document.
type Backend interface {
	// Load returns the stored mapping, creating an empty one if none exists yet.
	Load(ctx context.Context) (map[string]Entry, error)
	// Commit replaces the stored mapping with entries.
	Commit(ctx context.Context, entries map[string]Entry) error
}

// Ledger is the process-wide record of migrated items, keyed by source key.
//
// Reads are served from memory. Every mutation writes the complete mapping back through the backend
// before returning, one mutation at a time.
type Ledger struct {
	backend Backend
	logger  *log.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	stale   bool
	now     func() time.Time
}

// Open loads the mapping from backend. Callers keep the returned ledger for the life of the process.
func Open(ctx context.Context, backend Backend, logger *log.Logger) (*Ledger, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	l := &Ledger{backend: backend, logger: logger, now: time.Now}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload replaces the in-memory mapping with the backend's and clears the stale flag.
func (l *Ledger) Reload(ctx context.Context) error {
	entries, err := l.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if entries == nil {
		entries = map[string]Entry{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
	l.stale = false
	l.logger.Debug("ledger loaded", "entries", len(entries))
	return nil
}

// Get returns the destination reference stored for key.
func (l *Ledger) Get(key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[key]
	return entry.Ref, ok
}

// Contains reports whether key was already migrated.
func (l *Ledger) Contains(key string) bool {
	_, ok := l.Get(key)
	return ok
}

// Len is the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Stale reports whether a failed commit left memory and backend possibly out of sync.
func (l *Ledger) Stale() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stale
}

// Keys returns the source keys in sorted order.
func (l *Ledger) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Sorted(maps.Keys(l.entries))
}

// Records returns every entry sorted by source key.
func (l *Ledger) Records() []models.MigrationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]models.MigrationRecord, 0, len(l.entries))
	for _, key := range slices.Sorted(maps.Keys(l.entries)) {
		entry := l.entries[key]
		records = append(records, models.MigrationRecord{SourceKey: key, DestinationRef: entry.Ref, CreatedAt: entry.CreatedAt})
	}
	return records
}

// Set records key as migrated to ref and commits the mapping.
func (l *Ledger) Set(ctx context.Context, key, ref string) error {
	if key == "" || ref == "" {
		return fmt.Errorf("%w: ledger entries need a key and a reference", shared.ErrInvalidInput)
	}

	return l.mutate(ctx, func(entries map[string]Entry) bool {
		if entries[key].Ref == ref {
			return false
		}
		entries[key] = Entry{Ref: ref, CreatedAt: l.stamp()}
		return true
	})
}

// Delete removes key and commits the mapping.
func (l *Ledger) Delete(ctx context.Context, key string) error {
	found := true
	err := l.mutate(ctx, func(entries map[string]Entry) bool {
		if _, ok := entries[key]; !ok {
			found = false
			return false
		}
		delete(entries, key)
		return true
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, key)
	}
	return nil
}

// Merge adds every entry of other, overwriting existing keys, in a single commit. Entries without a
// creation time are stamped with the current time.
func (l *Ledger) Merge(ctx context.Context, other map[string]Entry) (int, error) {
	changed := 0
	err := l.mutate(ctx, func(entries map[string]Entry) bool {
		now := l.stamp()
		for key, entry := range other {
			if key == "" || entry.Ref == "" || entries[key].Ref == entry.Ref {
				continue
			}
			if entry.CreatedAt.IsZero() {
				entry.CreatedAt = now
			}
			entries[key] = entry
			changed++
		}
		return changed > 0
	})
	return changed, err
}

// stamp is the creation time recorded for new entries, at the resolution the document keeps.
func (l *Ledger) stamp() time.Time {
	return l.now().UTC().Truncate(time.Second)
}

// mutate applies fn to a copy of the mapping and commits it. Memory only changes once the commit
// succeeded; a failed commit marks the ledger stale.
func (l *Ledger) mutate(ctx context.Context, fn func(map[string]Entry) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stale {
		return shared.ErrLedgerStale
	}

	next := maps.Clone(l.entries)
	if next == nil {
		next = map[string]Entry{}
	}
	if !fn(next) {
		return nil
	}

	start := time.Now()
	if err := l.backend.Commit(ctx, next); err != nil {
		l.stale = true
		l.logger.Error("ledger commit failed", "err", err)
		return fmt.Errorf("%w: %w", shared.ErrCommitFailed, err)
	}

	l.entries = next
	l.logger.Debug("ledger committed", "entries", len(next), "took", time.Since(start).Round(time.Millisecond))
	return nil
}

// Encode renders entries as the persisted document: a JSON object indented by two spaces, keys sorted,
// with no HTML escaping so URLs stay readable. Entries with a creation time are written as
// {"url": ..., "created_at": ...}, the rest as the bare reference.
func Encode(entries map[string]Entry) ([]byte, error) {
	doc := make(map[string]any, len(entries))
	for key, entry := range entries {
		if entry.CreatedAt.IsZero() {
			doc[key] = entry.Ref
			continue
		}
		doc[key] = structuredValue{URL: entry.Ref, CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339)}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

type structuredValue struct {
	URL       string `json:"url"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Decode parses a persisted document. Values are either a reference string or an object whose url field
// is the reference and whose optional created_at is an RFC 3339 time. Blank input is an empty mapping.
func Decode(data []byte) (map[string]Entry, error) {
	entries := map[string]Entry{}
	if strings.TrimSpace(string(data)) == "" {
		return entries, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCorruptLedger, err)
	}

	for key, value := range raw {
		var ref string
		if err := json.Unmarshal(value, &ref); err == nil {
			entries[key] = Entry{Ref: ref}
			continue
		}

		var sv structuredValue
		if err := json.Unmarshal(value, &sv); err != nil || sv.URL == "" {
			return nil, fmt.Errorf("%w: entry %q has no reference", shared.ErrCorruptLedger, key)
		}

		entry := Entry{Ref: sv.URL}
		if sv.CreatedAt != "" {
			t, err := time.Parse(time.RFC3339, sv.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %q has created_at %q", shared.ErrCorruptLedger, key, sv.CreatedAt)
			}
			entry.CreatedAt = t.UTC()
		}
		entries[key] = entry
	}
	return entries, nil
}
