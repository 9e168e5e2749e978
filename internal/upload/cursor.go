package upload

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultChunkSize is the block size pulled from the download stream.
const DefaultChunkSize = 1024 * 1024

const sniffLen = 3072

const genericContentType = "application/octet-stream"

// ChunkCursor exposes a forward-only stream as the addressable chunks a resumable upload asks for.
//
// Only two offsets are ever valid: the offset of the chunk served last, which is answered from cache so a
// retried send sees identical bytes, and the offset right after it, which pulls the next block. The stream
// cannot seek, so anything else is an error.
type ChunkCursor struct {
	r           *bufio.Reader
	size        int64
	chunkSize   int
	contentType string

	lastOffset int64
	lastBuf    []byte
	consumed   int64
	exhausted  bool
}

// NewChunkCursor wraps r, which must yield exactly size bytes.
//
// An empty or generic contentType is replaced with one sniffed from the first bytes of the stream.
func NewChunkCursor(r io.Reader, size int64, contentType string, chunkSize int) (*ChunkCursor, error) {
	if chunkSize <= 0 {
		return nil, retry.Permanent("cursor", fmt.Errorf("%w: %d", shared.ErrInvalidChunkSize, chunkSize))
	}
	if size < 0 {
		return nil, retry.Permanent("cursor", fmt.Errorf("%w: negative size %d", shared.ErrInvalidInput, size))
	}

	c := &ChunkCursor{
		r:           bufio.NewReaderSize(r, max(sniffLen, 4096)),
		size:        size,
		chunkSize:   chunkSize,
		contentType: contentType,
		lastOffset:  -1,
	}

	if contentType == "" || contentType == genericContentType {
		c.contentType = c.sniff()
	}
	return c, nil
}

// sniff detects the content type without consuming the stream. Peek errors are left for Read to report.
func (c *ChunkCursor) sniff() string {
	head, _ := c.r.Peek(sniffLen)
	if len(head) == 0 {
		return genericContentType
	}
	return mimetype.Detect(head).String()
}

// Size is the declared total size.
func (c *ChunkCursor) Size() int64 { return c.size }

// ChunkSize is the maximum block size.
func (c *ChunkCursor) ChunkSize() int { return c.chunkSize }

// ContentType is the declared or sniffed media type.
func (c *ChunkCursor) ContentType() string { return c.contentType }

// Consumed is how many bytes have been pulled from the stream.
func (c *ChunkCursor) Consumed() int64 { return c.consumed }

// Read returns up to length bytes at offset. Errors are permanent faults because a partially consumed
// stream cannot be rewound.
func (c *ChunkCursor) Read(offset int64, length int) ([]byte, error) {
	if offset == c.lastOffset {
		return c.lastBuf, nil
	}

	next := int64(0)
	if c.lastOffset >= 0 {
		next = c.lastOffset + int64(len(c.lastBuf))
	}
	if offset != next {
		return nil, retry.Permanent("cursor", fmt.Errorf("%w: offset %d, expected %d or %d",
			shared.ErrNonSequential, offset, c.lastOffset, next))
	}

	n := int64(c.chunkSize)
	if length > 0 && int64(length) < n {
		n = int64(length)
	}
	if remaining := c.size - offset; remaining < n {
		n = remaining
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, retry.Permanent("cursor", fmt.Errorf("%w: stream ended before %d of %d bytes",
				shared.ErrSizeMismatch, offset+n, c.size))
		}
		return nil, retry.Permanent("cursor", fmt.Errorf("read stream at %d: %w", offset, err))
	}
	c.consumed += n

	if offset+n == c.size {
		if err := c.verifyExhausted(); err != nil {
			return nil, err
		}
	}

	c.lastOffset = offset
	c.lastBuf = buf
	return buf, nil
}

// verifyExhausted checks that the stream holds no bytes past the declared size.
func (c *ChunkCursor) verifyExhausted() error {
	if c.exhausted {
		return nil
	}

	var probe [1]byte
	n, err := c.r.Read(probe[:])
	if n > 0 {
		return retry.Permanent("cursor", fmt.Errorf("%w: stream is longer than %d bytes", shared.ErrSizeMismatch, c.size))
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return retry.Permanent("cursor", fmt.Errorf("read stream tail: %w", err))
	}

	c.exhausted = true
	return nil
}
