package upload

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReader records how many bytes were pulled from the underlying stream.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestNewChunkCursor(t *testing.T) {
	t.Run("rejects non positive chunk size", func(t *testing.T) {
		for _, size := range []int{0, -1} {
			_, err := NewChunkCursor(strings.NewReader("x"), 1, "video/mp4", size)
			require.ErrorIs(t, err, shared.ErrInvalidChunkSize)
			assert.False(t, retry.IsTransient(err))
		}
	})

	t.Run("rejects negative size", func(t *testing.T) {
		_, err := NewChunkCursor(strings.NewReader("x"), -1, "video/mp4", 10)
		require.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("keeps declared content type", func(t *testing.T) {
		c, err := NewChunkCursor(strings.NewReader("hello"), 5, "video/quicktime", 10)
		require.NoError(t, err)
		assert.Equal(t, "video/quicktime", c.ContentType())
	})

	t.Run("sniffs generic content type", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32))
		c, err := NewChunkCursor(bytes.NewReader(png), int64(len(png)), "application/octet-stream", 16)
		require.NoError(t, err)
		assert.Equal(t, "image/png", c.ContentType())

		// sniffing must not consume the stream
		got, err := c.Read(0, 16)
		require.NoError(t, err)
		assert.Equal(t, png[:16], got)
	})

	t.Run("empty stream sniffs as generic", func(t *testing.T) {
		c, err := NewChunkCursor(strings.NewReader(""), 0, "", 16)
		require.NoError(t, err)
		assert.Equal(t, "application/octet-stream", c.ContentType())
	})
}

func TestChunkCursorRead(t *testing.T) {
	t.Run("sequential reads cover the stream", func(t *testing.T) {
		data := payload(2500)
		c, err := NewChunkCursor(bytes.NewReader(data), int64(len(data)), "video/mp4", 1000)
		require.NoError(t, err)

		var got []byte
		var sizes []int
		for offset := int64(0); offset < int64(len(data)); {
			chunk, err := c.Read(offset, 1000)
			require.NoError(t, err)
			got = append(got, chunk...)
			sizes = append(sizes, len(chunk))
			offset += int64(len(chunk))
		}

		assert.Equal(t, data, got)
		assert.Equal(t, []int{1000, 1000, 500}, sizes)
		assert.Equal(t, int64(2500), c.Consumed())
	})

	t.Run("repeated offset is served from cache", func(t *testing.T) {
		data := payload(300)
		src := &countingReader{r: bytes.NewReader(data)}
		c, err := NewChunkCursor(src, 300, "video/mp4", 100)
		require.NoError(t, err)

		first, err := c.Read(0, 100)
		require.NoError(t, err)
		pulled := src.n

		again, err := c.Read(0, 100)
		require.NoError(t, err)
		assert.Equal(t, first, again)
		assert.Equal(t, pulled, src.n, "cached read must not touch the stream")
		assert.Equal(t, int64(100), c.Consumed())
	})

	t.Run("length smaller than chunk size", func(t *testing.T) {
		c, err := NewChunkCursor(bytes.NewReader(payload(100)), 100, "video/mp4", 64)
		require.NoError(t, err)

		chunk, err := c.Read(0, 10)
		require.NoError(t, err)
		assert.Len(t, chunk, 10)

		chunk, err = c.Read(10, 0)
		require.NoError(t, err)
		assert.Len(t, chunk, 64)
	})

	t.Run("non sequential offsets fail", func(t *testing.T) {
		tests := []struct {
			name   string
			prime  []int64
			offset int64
		}{
			{name: "first read not at zero", offset: 5},
			{name: "skip ahead", prime: []int64{0}, offset: 200},
			{name: "rewind past cache", prime: []int64{0, 100}, offset: 0},
			{name: "partial step", prime: []int64{0}, offset: 50},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c, err := NewChunkCursor(bytes.NewReader(payload(300)), 300, "video/mp4", 100)
				require.NoError(t, err)
				for _, off := range tt.prime {
					_, err := c.Read(off, 100)
					require.NoError(t, err)
				}

				_, err = c.Read(tt.offset, 100)
				require.ErrorIs(t, err, shared.ErrNonSequential)
				assert.Equal(t, retry.PermanentOther, retry.KindOf(err))
			})
		}
	})

	t.Run("short stream is a size mismatch", func(t *testing.T) {
		c, err := NewChunkCursor(bytes.NewReader(payload(150)), 200, "video/mp4", 100)
		require.NoError(t, err)

		_, err = c.Read(0, 100)
		require.NoError(t, err)
		_, err = c.Read(100, 100)
		require.ErrorIs(t, err, shared.ErrSizeMismatch)
	})

	t.Run("long stream is a size mismatch", func(t *testing.T) {
		c, err := NewChunkCursor(bytes.NewReader(payload(250)), 200, "video/mp4", 100)
		require.NoError(t, err)

		_, err = c.Read(0, 100)
		require.NoError(t, err)
		_, err = c.Read(100, 100)
		require.ErrorIs(t, err, shared.ErrSizeMismatch)
	})

	t.Run("stream errors are permanent", func(t *testing.T) {
		boom := errors.New("connection dropped")
		c, err := NewChunkCursor(io.MultiReader(bytes.NewReader(payload(10)), &failingReader{err: boom}), 100, "video/mp4", 50)
		require.NoError(t, err)

		_, err = c.Read(0, 50)
		require.ErrorIs(t, err, boom)
		assert.False(t, retry.IsTransient(err))
	})

	t.Run("zero size stream", func(t *testing.T) {
		c, err := NewChunkCursor(strings.NewReader(""), 0, "video/mp4", 100)
		require.NoError(t, err)

		chunk, err := c.Read(0, 100)
		require.NoError(t, err)
		assert.Empty(t, chunk)
	})
}

type failingReader struct{ err error }

func (f *failingReader) Read([]byte) (int, error) { return 0, f.err }
