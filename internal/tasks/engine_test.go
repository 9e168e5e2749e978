package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/gpyt/internal/events"
	"github.com/desertthunder/gpyt/internal/ledger"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/services"
	"github.com/desertthunder/gpyt/internal/shared"
	tu "github.com/desertthunder/gpyt/internal/testing"
	"github.com/desertthunder/gpyt/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	mu      sync.Mutex
	doc     map[string]ledger.Entry
	commits int
	failOn  int // commit number that fails, 0 for none
}

func (m *memoryBackend) Load(context.Context) (map[string]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.doc), nil
}

func (m *memoryBackend) Commit(_ context.Context, entries map[string]ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.commits == m.failOn {
		return errors.New("write refused")
	}
	m.doc = maps.Clone(entries)
	return nil
}

// snapshot returns the committed references by key.
func (m *memoryBackend) snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make(map[string]string, len(m.doc))
	for key, entry := range m.doc {
		refs[key] = entry.Ref
	}
	return refs
}

type fakeSource struct {
	mu       sync.Mutex
	pages    [][]models.MediaItem
	data     map[string][]byte
	listErrs int
	probeErr map[string]error
	lists    []string
}

func newFakeSource(pages ...[]models.MediaItem) *fakeSource {
	s := &fakeSource{pages: pages, data: map[string][]byte{}, probeErr: map[string]error{}}
	for _, page := range pages {
		for _, item := range page {
			s.data[item.ID] = tu.Payload(int(item.Size))
		}
	}
	return s
}

func (s *fakeSource) ListVideos(_ context.Context, token string, _ int) (*models.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = append(s.lists, token)
	if s.listErrs > 0 {
		s.listErrs--
		return nil, retry.FromStatus("list videos", http.StatusServiceUnavailable, shared.ErrServiceUnavailable)
	}

	n := 0
	if token != "" {
		var err error
		if n, err = strconv.Atoi(token); err != nil || n >= len(s.pages) {
			return nil, retry.Permanent("list videos", fmt.Errorf("%w: bad token", shared.ErrAPIRequest))
		}
	}
	page := &models.Page{}
	if n < len(s.pages) {
		page.Items = s.pages[n]
	}
	if n+1 < len(s.pages) {
		page.NextPageToken = strconv.Itoa(n + 1)
	}
	return page, nil
}

func (s *fakeSource) ProbeSize(_ context.Context, item models.MediaItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.probeErr[item.ID]; err != nil {
		return 0, err
	}
	return int64(len(s.data[item.ID])), nil
}

func (s *fakeSource) OpenStream(_ context.Context, item models.MediaItem) (*services.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.data[item.ID]
	return &services.Stream{Body: io.NopCloser(bytes.NewReader(data)), ContentType: item.MimeType, Size: int64(len(data))}, nil
}

type fakeUpload struct {
	target   models.UploadTarget
	received []byte
}

// fakeDestination completes an upload when the last byte arrives.
type fakeDestination struct {
	mu        sync.Mutex
	uploads   map[string]*fakeUpload
	initErr   map[string]error // by title
	initiates int
	chunks    int
	completed int
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{uploads: map[string]*fakeUpload{}, initErr: map[string]error{}}
}

func (d *fakeDestination) Initiate(_ context.Context, req upload.UploadRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initiates++
	if err := d.initErr[req.Target.Title]; err != nil {
		return "", err
	}
	handle := "h" + strconv.Itoa(d.initiates)
	d.uploads[handle] = &fakeUpload{target: req.Target}
	return handle, nil
}

func (d *fakeDestination) UploadChunk(_ context.Context, handle string, offset, total int64, data []byte) (upload.ChunkResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks++
	u := d.uploads[handle]
	u.received = append(u.received, data...)
	confirmed := offset + int64(len(data))
	if confirmed < total {
		return upload.ChunkResult{Confirmed: confirmed}, nil
	}
	d.completed++
	return upload.ChunkResult{Done: true, Confirmed: total, ResourceID: "yt" + strconv.Itoa(d.completed)}, nil
}

func (d *fakeDestination) Permalink(id string) string { return "https://youtu.be/" + id }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func video(id string, size int64) models.MediaItem {
	return models.MediaItem{
		ID:          id,
		ProductURL:  "https://photos.google.com/lr/photo/" + id,
		Filename:    id + ".mp4",
		Description: "clip " + id,
		MimeType:    "video/mp4",
		Size:        size,
	}
}

func noSleep() *retry.Controller {
	return retry.New(retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))
}

type fixture struct {
	source  *fakeSource
	dest    *fakeDestination
	backend *memoryBackend
	ledger  *ledger.Ledger
	events  *recordingPublisher
}

func newFixture(t *testing.T, pages ...[]models.MediaItem) *fixture {
	t.Helper()
	backend := &memoryBackend{doc: map[string]ledger.Entry{}}
	l, err := ledger.Open(context.Background(), backend, nil)
	require.NoError(t, err)
	return &fixture{
		source:  newFakeSource(pages...),
		dest:    newFakeDestination(),
		backend: backend,
		ledger:  l,
		events:  &recordingPublisher{},
	}
}

func (f *fixture) engine(t *testing.T, mutate ...func(*EngineOpts)) *MigrationEngine {
	t.Helper()
	opts := EngineOpts{
		Source:      f.source,
		Destination: f.dest,
		Ledger:      f.ledger,
		Retry:       noSleep(),
		Events:      f.events,
		ChunkSize:   1000,
	}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := NewMigrationEngine(opts)
	require.NoError(t, err)
	return e
}

func TestNewMigrationEngine(t *testing.T) {
	f := newFixture(t)

	_, err := NewMigrationEngine(EngineOpts{Destination: f.dest, Ledger: f.ledger})
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	_, err = NewMigrationEngine(EngineOpts{Source: f.source, Ledger: f.ledger})
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	_, err = NewMigrationEngine(EngineOpts{Source: f.source, Destination: f.dest})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	e, err := NewMigrationEngine(EngineOpts{Source: f.source, Destination: f.dest, Ledger: f.ledger})
	require.NoError(t, err)
	assert.Equal(t, upload.DefaultChunkSize, e.chunkSize)
	assert.Equal(t, DefaultPageSize, e.pageSize)
	assert.Equal(t, 1, e.workers)
	assert.Equal(t, retry.Unbounded, e.retry.MaxRetries())
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("migrates every page", func(t *testing.T) {
		f := newFixture(t,
			[]models.MediaItem{video("p1", 2500), video("p2", 1000)},
			[]models.MediaItem{video("p3", 10)},
		)
		res, err := f.engine(t).Run(ctx, nil, RunOpts{RunID: "r1"})
		require.NoError(t, err)

		assert.Equal(t, 2, res.Pages)
		assert.Equal(t, 3, res.Migrated)
		assert.Equal(t, int64(3510), res.Bytes)
		assert.Empty(t, res.NextPageToken)
		assert.NoError(t, res.Err())

		assert.Equal(t, map[string]string{
			video("p1", 0).Key(): "https://youtu.be/yt1",
			video("p2", 0).Key(): "https://youtu.be/yt2",
			video("p3", 0).Key(): "https://youtu.be/yt3",
		}, f.backend.snapshot())
		assert.Equal(t, 3+1+1, f.dest.chunks)
		assert.Equal(t, 3, res.Items[0].Exchanges)

		require.Len(t, f.events.events, 3)
		assert.Equal(t, events.TypeCompleted, f.events.events[0].Type)
		assert.Equal(t, "r1", f.events.events[0].RunID)
	})

	t.Run("idempotent across runs", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 1500), video("p2", 500)})
		_, err := f.engine(t).Run(ctx, nil, RunOpts{})
		require.NoError(t, err)
		initiates, chunks := f.dest.initiates, f.dest.chunks

		reopened, err := ledger.Open(ctx, f.backend, nil)
		require.NoError(t, err)
		f.ledger = reopened

		res, err := f.engine(t).Run(ctx, nil, RunOpts{})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Skipped)
		assert.Zero(t, res.Migrated)
		assert.Equal(t, initiates, f.dest.initiates)
		assert.Equal(t, chunks, f.dest.chunks)
		assert.Equal(t, "https://youtu.be/yt1", res.Items[0].Reference)
	})

	t.Run("failure isolation", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 100), video("p2", 100), video("p3", 100)})
		f.dest.initErr["clip p2"] = retry.FromStatus("initiate upload", http.StatusForbidden, shared.ErrAPIRequest)

		res, err := f.engine(t).Run(ctx, nil, RunOpts{})
		require.NoError(t, err)

		assert.Equal(t, 2, res.Migrated)
		assert.Equal(t, 1, res.Failed)
		assert.Len(t, f.backend.snapshot(), 2)
		assert.NotContains(t, f.backend.snapshot(), video("p2", 0).Key())

		var itemErr *ItemError
		require.ErrorAs(t, res.Err(), &itemErr)
		assert.Equal(t, video("p2", 0).Key(), itemErr.Key)
		assert.Equal(t, retry.PermanentClient, retry.KindOf(res.Items[1].Err))
		assert.ErrorIs(t, res.Items[1].Err, shared.ErrUploadFailed)

		require.Len(t, f.events.events, 3)
		assert.Equal(t, events.TypeFailed, f.events.events[1].Type)
	})

	t.Run("transient listing is retried", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 10)})
		f.source.listErrs = 2
		res, err := f.engine(t).Run(ctx, nil, RunOpts{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Migrated)
		assert.Len(t, f.source.lists, 3)
	})

	t.Run("listing failure ends the run", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 10)}, []models.MediaItem{video("p2", 10)})
		res, err := f.engine(t).Run(ctx, nil, RunOpts{StartToken: "9"})
		assert.ErrorIs(t, err, shared.ErrAPIRequest)
		assert.Zero(t, res.Pages)
	})

	t.Run("start token and page limit", func(t *testing.T) {
		f := newFixture(t,
			[]models.MediaItem{video("p1", 10)},
			[]models.MediaItem{video("p2", 10)},
			[]models.MediaItem{video("p3", 10)},
		)
		res, err := f.engine(t).Run(ctx, nil, RunOpts{StartToken: "1", MaxPages: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Migrated)
		assert.Equal(t, "p2", res.Items[0].Item.ID)
		assert.Equal(t, "2", res.NextPageToken)
	})

	t.Run("item limit resumes from the same page", func(t *testing.T) {
		f := newFixture(t,
			[]models.MediaItem{video("p1", 10), video("p2", 10), video("p3", 10)},
			[]models.MediaItem{video("p4", 10)},
		)
		res, err := f.engine(t).Run(ctx, nil, RunOpts{MaxItems: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Migrated)
		assert.Equal(t, "", res.NextPageToken)

		res, err = f.engine(t).Run(ctx, nil, RunOpts{StartToken: res.NextPageToken})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Skipped)
		assert.Equal(t, 2, res.Migrated)
	})

	t.Run("dry run uploads nothing", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 10), video("p2", 10)})
		require.NoError(t, f.ledger.Set(ctx, video("p1", 0).Key(), "https://youtu.be/old"))

		res, err := f.engine(t).Run(ctx, nil, RunOpts{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Skipped)
		assert.Equal(t, 1, res.Pending)
		assert.Zero(t, f.dest.initiates)
	})

	t.Run("declined items are not recorded", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 10), video("p2", 10)})
		targets := TargetFunc(func(ctx context.Context, item models.MediaItem) (models.UploadTarget, error) {
			if item.ID == "p1" {
				return models.UploadTarget{}, shared.ErrSkipItem
			}
			return DefaultTargets{}.Target(ctx, item)
		})

		res, err := f.engine(t, func(o *EngineOpts) { o.Targets = targets }).Run(ctx, nil, RunOpts{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Declined)
		assert.Equal(t, 1, res.Migrated)
		assert.NoError(t, res.Err())
		assert.Len(t, f.backend.snapshot(), 1)
	})

	t.Run("stale ledger fails remaining items fast", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 10), video("p2", 10), video("p3", 10)})
		f.backend.failOn = 1

		res, err := f.engine(t).Run(ctx, nil, RunOpts{})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Failed)
		assert.ErrorIs(t, res.Items[0].Err, shared.ErrCommitFailed)
		assert.ErrorIs(t, res.Items[1].Err, shared.ErrLedgerStale)
		assert.ErrorIs(t, res.Items[2].Err, shared.ErrLedgerStale)
		assert.Equal(t, 1, f.dest.initiates)
	})

	t.Run("publish errors do not fail items", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 10)})
		f.events.err = errors.New("broker down")
		res, err := f.engine(t).Run(ctx, nil, RunOpts{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Migrated)
	})

	t.Run("cancelled before start", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 10)})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		res, err := f.engine(t).Run(cctx, nil, RunOpts{})
		assert.ErrorIs(t, err, shared.ErrMigrationAborted)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, res.Pages)
		assert.Zero(t, f.dest.initiates)
	})

	t.Run("progress updates", func(t *testing.T) {
		f := newFixture(t, []models.MediaItem{video("p1", 2000)})
		prog := make(chan ProgressUpdate, 100)
		_, err := f.engine(t).Run(ctx, prog, RunOpts{})
		require.NoError(t, err)
		close(prog)

		var phases []Phase
		for u := range prog {
			phases = append(phases, u.Phase)
		}
		assert.Equal(t, []Phase{ListPage, ProbeItem, UploadChunk, UploadChunk, CommitItem}, phases)
	})
}

func TestRunConcurrent(t *testing.T) {
	items := make([]models.MediaItem, 8)
	for i := range items {
		items[i] = video("p"+strconv.Itoa(i+1), int64(500*(i+1)))
	}
	f := newFixture(t, items)

	res, err := f.engine(t, func(o *EngineOpts) { o.Workers = 4 }).Run(context.Background(), nil, RunOpts{})
	require.NoError(t, err)

	assert.Equal(t, 8, res.Migrated)
	assert.Len(t, f.backend.snapshot(), 8)
	for i, item := range res.Items {
		assert.Equal(t, items[i].ID, item.Item.ID, "results keep page order")
	}
	for handle, u := range f.dest.uploads {
		assert.NotEmpty(t, u.received, handle)
	}
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	g := tu.NewGoogleServer(t, tu.FakeVideo{
		ID:           "p1",
		Filename:     "p1.mp4",
		Description:  "beach",
		MimeType:     "video/mp4",
		CreationTime: "2019-05-04T12:00:00Z",
		Data:         tu.Payload(3_000_000),
	})
	photos := services.NewPhotosService(g.URL, nil, nil)
	youtube := services.NewYouTubeService(g.URL, nil, nil)

	l, err := ledger.Open(ctx, ledger.NewSentinelBackend(photos, "", nil), nil)
	require.NoError(t, err)

	e, err := NewMigrationEngine(EngineOpts{
		Source:      photos,
		Destination: youtube,
		Ledger:      l,
		Retry:       noSleep(),
		ChunkSize:   1_000_000,
	})
	require.NoError(t, err)

	res, err := e.Run(ctx, nil, RunOpts{})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Migrated)
	assert.Equal(t, 3, g.Chunks)
	assert.Equal(t, 3, res.Items[0].Exchanges)
	assert.Equal(t, "beach", g.UploadedTitle("yt1"))

	desc, ok := g.MarkerDescription(ledger.DefaultAlbumTitle)
	require.True(t, ok)
	decoded, err := ledger.Decode([]byte(desc))
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "https://youtu.be/yt1", decoded[g.ProductURL("p1")].Ref)
	assert.False(t, decoded[g.ProductURL("p1")].CreatedAt.IsZero())

	res, err = e.Run(ctx, nil, RunOpts{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, g.UploadCount())
}
