package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gpyt/internal/shared"
)

// DefaultAlbumTitle names the app-created album holding the marker item.
const DefaultAlbumTitle = "migrated-to-youtube"

// Marker is the source-side media item whose description stores the ledger document.
type Marker struct {
	ID          string
	AlbumID     string
	Description string
}

// MarkerStore is the part of the source service the sentinel backend needs.
type MarkerStore interface {
	// FindMarker returns the first item of the album titled albumTitle, or [shared.ErrMarkerNotFound].
	FindMarker(ctx context.Context, albumTitle string) (*Marker, error)
	// CreateMarker creates the album and uploads image into it with an empty JSON object as description.
	CreateMarker(ctx context.Context, albumTitle string, image []byte, contentType string) (*Marker, error)
	ReadMarker(ctx context.Context, id string) (string, error)
	WriteMarker(ctx context.Context, id, description string) error
}

// SentinelBackend keeps the ledger in the description of a marker item on the source service.
//
// Two processes that find no marker at the same moment will each create one; later lookups only ever
// see the first item of the first matching album.
type SentinelBackend struct {
	store      MarkerStore
	albumTitle string
	logger     *log.Logger

	mu       sync.Mutex
	markerID string
}

// NewSentinelBackend creates a backend over store. An empty albumTitle uses [DefaultAlbumTitle].
func NewSentinelBackend(store MarkerStore, albumTitle string, logger *log.Logger) *SentinelBackend {
	if albumTitle == "" {
		albumTitle = DefaultAlbumTitle
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &SentinelBackend{store: store, albumTitle: albumTitle, logger: logger}
}

// MarkerID is the marker item id, empty before the first Load.
func (b *SentinelBackend) MarkerID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.markerID
}

// Load locates the marker, creating it on first use, and decodes its description.
func (b *SentinelBackend) Load(ctx context.Context) (map[string]Entry, error) {
	b.mu.Lock()
	id := b.markerID
	b.mu.Unlock()

	if id != "" {
		desc, err := b.store.ReadMarker(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read marker %s: %w", id, err)
		}
		return Decode([]byte(desc))
	}

	marker, err := b.store.FindMarker(ctx, b.albumTitle)
	switch {
	case errors.Is(err, shared.ErrMarkerNotFound):
		b.logger.Info("creating ledger marker", "album", b.albumTitle)
		marker, err = b.store.CreateMarker(ctx, b.albumTitle, PlaceholderImage(), "image/png")
		if err != nil {
			return nil, fmt.Errorf("create marker: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("find marker: %w", err)
	}

	b.mu.Lock()
	b.markerID = marker.ID
	b.mu.Unlock()

	return Decode([]byte(marker.Description))
}

// Commit writes the whole mapping into the marker description.
func (b *SentinelBackend) Commit(ctx context.Context, entries map[string]Entry) error {
	id := b.MarkerID()
	if id == "" {
		return fmt.Errorf("%w: backend was never loaded", shared.ErrMarkerNotFound)
	}

	doc, err := Encode(entries)
	if err != nil {
		return err
	}
	return b.store.WriteMarker(ctx, id, string(doc))
}

var placeholder = sync.OnceValue(func() []byte {
	const side = 64
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	fill := color.RGBA{R: 0xcc, G: 0x18, B: 0x1e, A: 0xff}
	for y := range side {
		for x := range side {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
})

// PlaceholderImage is the PNG uploaded as the marker item.
func PlaceholderImage() []byte { return placeholder() }
