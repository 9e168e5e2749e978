package ledger

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBackend keeps the last committed document as bytes, like a real backend would.
type memoryBackend struct {
	mu       sync.Mutex
	doc      []byte
	loads    int
	commits  int
	failNext error
}

func (m *memoryBackend) Load(context.Context) (map[string]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return Decode(m.doc)
}

func (m *memoryBackend) Commit(_ context.Context, entries map[string]Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	doc, err := Encode(entries)
	if err != nil {
		return err
	}
	m.doc = doc
	m.commits++
	return nil
}

// stored returns the committed references by key.
func (m *memoryBackend) stored(t *testing.T) map[string]string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := Decode(m.doc)
	require.NoError(t, err)
	out := make(map[string]string, len(entries))
	for key, entry := range entries {
		out[key] = entry.Ref
	}
	return out
}

func TestLedgerDurability(t *testing.T) {
	ctx := context.Background()
	backend := &memoryBackend{}
	l, err := Open(ctx, backend, nil)
	require.NoError(t, err)

	require.NoError(t, l.Set(ctx, "A", "x"))
	require.NoError(t, l.Set(ctx, "B", "y"))
	assert.Equal(t, map[string]string{"A": "x", "B": "y"}, backend.stored(t))

	require.NoError(t, l.Delete(ctx, "A"))
	assert.Equal(t, map[string]string{"B": "y"}, backend.stored(t))

	reopened, err := Open(ctx, backend, nil)
	require.NoError(t, err)
	ref, ok := reopened.Get("B")
	assert.True(t, ok)
	assert.Equal(t, "y", ref)
	assert.False(t, reopened.Contains("A"))
}

func TestLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("loads once", func(t *testing.T) {
		backend := &memoryBackend{doc: []byte(`{"p1": "https://youtu.be/yt1"}`)}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)

		for range 3 {
			assert.True(t, l.Contains("p1"))
		}
		require.NoError(t, l.Set(ctx, "p2", "https://youtu.be/yt2"))
		assert.Equal(t, 1, backend.loads)
		assert.Equal(t, 2, l.Len())
	})

	t.Run("unchanged set does not commit", func(t *testing.T) {
		backend := &memoryBackend{}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)

		require.NoError(t, l.Set(ctx, "A", "x"))
		require.NoError(t, l.Set(ctx, "A", "x"))
		assert.Equal(t, 1, backend.commits)
	})

	t.Run("rejects empty key or reference", func(t *testing.T) {
		l, err := Open(ctx, &memoryBackend{}, nil)
		require.NoError(t, err)

		require.ErrorIs(t, l.Set(ctx, "", "x"), shared.ErrInvalidInput)
		require.ErrorIs(t, l.Set(ctx, "A", ""), shared.ErrInvalidInput)
	})

	t.Run("delete of unknown key", func(t *testing.T) {
		backend := &memoryBackend{}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)

		require.ErrorIs(t, l.Delete(ctx, "nope"), shared.ErrRecordNotFound)
		assert.Zero(t, backend.commits)
	})

	t.Run("failed commit rolls back and marks stale", func(t *testing.T) {
		backend := &memoryBackend{}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)
		require.NoError(t, l.Set(ctx, "A", "x"))

		boom := errors.New("patch failed")
		backend.failNext = boom
		err = l.Set(ctx, "B", "y")
		require.ErrorIs(t, err, shared.ErrCommitFailed)
		require.ErrorIs(t, err, boom)

		assert.False(t, l.Contains("B"), "memory must match the last committed state")
		assert.True(t, l.Stale())
		require.ErrorIs(t, l.Set(ctx, "C", "z"), shared.ErrLedgerStale)
		require.ErrorIs(t, l.Delete(ctx, "A"), shared.ErrLedgerStale)

		require.NoError(t, l.Reload(ctx))
		assert.False(t, l.Stale())
		require.NoError(t, l.Set(ctx, "C", "z"))
		assert.Equal(t, map[string]string{"A": "x", "C": "z"}, backend.stored(t))
	})

	t.Run("keys and records are sorted", func(t *testing.T) {
		l, err := Open(ctx, &memoryBackend{}, nil)
		require.NoError(t, err)
		for _, k := range []string{"c", "a", "b"} {
			require.NoError(t, l.Set(ctx, k, "ref-"+k))
		}

		assert.Equal(t, []string{"a", "b", "c"}, l.Keys())
		records := l.Records()
		require.Len(t, records, 3)
		assert.Equal(t, "a", records[0].SourceKey)
		assert.Equal(t, "ref-a", records[0].DestinationRef)
	})

	t.Run("merge commits once", func(t *testing.T) {
		backend := &memoryBackend{}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)
		require.NoError(t, l.Set(ctx, "a", "1"))

		imported := time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)
		n, err := l.Merge(ctx, map[string]Entry{
			"a": {Ref: "1"},
			"b": {Ref: "2", CreatedAt: imported},
			"c": {Ref: "3"},
			"":  {Ref: "skip"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 2, backend.commits)
		assert.Equal(t, 3, l.Len())

		records := l.Records()
		assert.Equal(t, imported, records[1].CreatedAt)
		assert.False(t, records[2].CreatedAt.IsZero())
	})

	t.Run("concurrent sets are all committed", func(t *testing.T) {
		backend := &memoryBackend{}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := string(rune('a' + i))
				assert.NoError(t, l.Set(ctx, key, "ref"))
			}()
		}
		wg.Wait()

		assert.Len(t, backend.stored(t), 20)
	})

	t.Run("unreadable created_at", func(t *testing.T) {
		_, err := Open(ctx, &memoryBackend{doc: []byte(`{"a": {"url": "x", "created_at": "yesterday"}}`)}, nil)
		require.ErrorIs(t, err, shared.ErrCorruptLedger)
	})

	t.Run("load error", func(t *testing.T) {

		_, err := Open(ctx, &memoryBackend{doc: []byte("{not json")}, nil)
		require.ErrorIs(t, err, shared.ErrCorruptLedger)
	})
}

func TestLedgerCreatedAt(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 890, time.UTC)

	t.Run("set stamps the record", func(t *testing.T) {
		backend := &memoryBackend{}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)
		l.now = func() time.Time { return fixed }

		require.NoError(t, l.Set(ctx, "p1", "https://youtu.be/yt1"))

		records := l.Records()
		require.Len(t, records, 1)
		assert.Equal(t, fixed.Truncate(time.Second), records[0].CreatedAt)
		assert.Contains(t, string(backend.doc), `"created_at": "2025-03-04T05:06:07Z"`)
	})

	t.Run("structured entries survive a set of another key", func(t *testing.T) {
		backend := &memoryBackend{doc: []byte(`{"p0": {"url": "https://youtu.be/yt0", "created_at": "2024-01-02T03:04:05Z"}}`)}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)
		l.now = func() time.Time { return fixed }

		require.NoError(t, l.Set(ctx, "p1", "https://youtu.be/yt1"))

		reopened, err := Open(ctx, backend, nil)
		require.NoError(t, err)
		records := reopened.Records()
		require.Len(t, records, 2)
		assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), records[0].CreatedAt)
		assert.Equal(t, "https://youtu.be/yt0", records[0].DestinationRef)
		assert.Equal(t, fixed.Truncate(time.Second), records[1].CreatedAt)
	})

	t.Run("bare references keep a zero time", func(t *testing.T) {
		backend := &memoryBackend{doc: []byte(`{"p0": "https://youtu.be/yt0"}`)}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)

		require.NoError(t, l.Set(ctx, "p1", "https://youtu.be/yt1"))

		assert.Contains(t, string(backend.doc), `"p0": "https://youtu.be/yt0"`)
		assert.True(t, l.Records()[0].CreatedAt.IsZero())
	})

	t.Run("replacing a reference restamps it", func(t *testing.T) {
		backend := &memoryBackend{doc: []byte(`{"p0": {"url": "https://youtu.be/old", "created_at": "2024-01-02T03:04:05Z"}}`)}
		l, err := Open(ctx, backend, nil)
		require.NoError(t, err)
		l.now = func() time.Time { return fixed }

		require.NoError(t, l.Set(ctx, "p0", "https://youtu.be/new"))
		assert.Equal(t, fixed.Truncate(time.Second), l.Records()[0].CreatedAt)
	})
}

func TestEncodeDecode(t *testing.T) {
	t.Run("encode is indented and unescaped", func(t *testing.T) {
		doc, err := Encode(map[string]Entry{"https://photos.google.com/a?x=1&y=2": {Ref: "https://youtu.be/v"}})
		require.NoError(t, err)
		assert.Equal(t, "{\n  \"https://photos.google.com/a?x=1&y=2\": \"https://youtu.be/v\"\n}", string(doc))
	})

	t.Run("encode structured", func(t *testing.T) {
		doc, err := Encode(map[string]Entry{
			"a": {Ref: "https://youtu.be/v", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": {"url": "https://youtu.be/v", "created_at": "2024-01-01T00:00:00Z"}}`, string(doc))
	})

	t.Run("encode nil", func(t *testing.T) {
		doc, err := Encode(nil)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(doc))
	})

	tests := []struct {
		name    string
		input   string
		want    map[string]Entry
		wantErr bool
	}{
		{name: "blank", input: "  ", want: map[string]Entry{}},
		{name: "empty object", input: "{}", want: map[string]Entry{}},
		{name: "strings", input: `{"a": "x"}`, want: map[string]Entry{"a": {Ref: "x"}}},
		{
			name:  "structured value",
			input: `{"a": {"url": "https://youtu.be/v", "created_at": "2024-01-01T00:00:00Z"}, "b": "y"}`,
			want: map[string]Entry{
				"a": {Ref: "https://youtu.be/v", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
				"b": {Ref: "y"},
			},
		},
		{name: "structured value without created_at", input: `{"a": {"url": "x"}}`, want: map[string]Entry{"a": {Ref: "x"}}},
		{name: "bad created_at", input: `{"a": {"url": "x", "created_at": "soon"}}`, wantErr: true},
		{name: "structured value without url", input: `{"a": {"created_at": "x"}}`, wantErr: true},
		{name: "number value", input: `{"a": 1}`, wantErr: true},
		{name: "array", input: `["a"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if tt.wantErr {
				require.ErrorIs(t, err, shared.ErrCorruptLedger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlaceholderImage(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(PlaceholderImage()))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}
