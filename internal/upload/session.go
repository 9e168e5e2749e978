package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/desertthunder/gpyt/internal/upload"

var errNoProgress = errors.New("destination acknowledged no new bytes")

// Status is the lifecycle state of a [Session]. Transitions only move forward.
type Status int

const (
	StatusInit Status = iota
	StatusUploading
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "INIT"
	case StatusUploading:
		return "UPLOADING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return ""
	}
}

// UploadRequest describes the media a resumable session is opened for.
type UploadRequest struct {
	Size        int64
	ContentType string
	Target      models.UploadTarget
}

// ChunkResult is the destination's answer to one chunk.
//
// While Done is false, Confirmed is the number of bytes the destination holds, which is the next offset
// to send. Done carries the id of the created resource.
type ChunkResult struct {
	Done       bool
	Confirmed  int64
	ResourceID string
}

// Destination speaks a resumable upload protocol.
type Destination interface {
	Initiate(ctx context.Context, req UploadRequest) (string, error)
	UploadChunk(ctx context.Context, handle string, offset, total int64, data []byte) (ChunkResult, error)
	Permalink(id string) string
}

// Observer is told how many bytes the destination has confirmed.
type Observer interface {
	OnProgress(confirmed, total int64)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(confirmed, total int64)

func (f ObserverFunc) OnProgress(confirmed, total int64) { f(confirmed, total) }

// Session drives one resumable upload from a [ChunkCursor] to a [Destination].
type Session struct {
	dest     Destination
	cursor   *ChunkCursor
	target   models.UploadTarget
	retry    *retry.Controller
	observer Observer
	logger   *log.Logger
	tracer   trace.Tracer

	mu        sync.Mutex
	status    Status
	handle    string
	confirmed int64
	reference string
	exchanges int
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithRetry sets the controller every network step runs through.
func WithRetry(c *retry.Controller) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.retry = c
		}
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) SessionOption {
	return func(s *Session) { s.observer = o }
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) SessionOption {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewSession prepares a session in [StatusInit]. Nothing is sent until [Session.Run].
func NewSession(dest Destination, cursor *ChunkCursor, target models.UploadTarget, opts ...SessionOption) *Session {
	s := &Session{
		dest:   dest,
		cursor: cursor,
		target: target,
		retry:  retry.New(),
		logger: log.New(io.Discard),
		tracer: otel.Tracer(tracerName),
		status: StatusInit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Confirmed returns the bytes acknowledged by the destination so far.
func (s *Session) Confirmed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

// Reference is the destination permalink once the session completed.
func (s *Session) Reference() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reference
}

// Handle is the session handle the destination issued, empty before initiation.
func (s *Session) Handle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Exchanges counts chunk exchanges that got an answer, retries excluded.
func (s *Session) Exchanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges
}

// Run initiates the upload and sends chunks until the destination returns a resource id.
//
// Each network step is wrapped by the retry controller. A retried chunk re-reads the same offset, which
// the cursor answers from its cache. On success the permalink is returned and the status is COMPLETED;
// any error that escapes the controller leaves the session FAILED.
func (s *Session) Run(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.status != StatusInit {
		st := s.status
		s.mu.Unlock()
		return "", retry.Permanent("session", fmt.Errorf("%w: status %s", shared.ErrSessionFinished, st))
	}
	s.status = StatusUploading
	s.mu.Unlock()

	total := s.cursor.Size()
	ctx, span := s.tracer.Start(ctx, "upload.session", trace.WithAttributes(
		attribute.Int64("upload.size", total),
		attribute.Int("upload.chunk_size", s.cursor.ChunkSize()),
		attribute.String("upload.content_type", s.cursor.ContentType()),
	))
	defer span.End()

	if err := s.target.Validate(); err != nil {
		return "", s.fail(span, retry.Permanent("session", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)))
	}

	req := UploadRequest{Size: total, ContentType: s.cursor.ContentType(), Target: s.target}
	handle, err := retry.Do(ctx, s.retry, "initiate upload", func(ctx context.Context) (string, error) {
		return s.dest.Initiate(ctx, req)
	})
	if err != nil {
		return "", s.fail(span, err)
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
	s.logger.Debug("upload session opened", "size", total, "content_type", req.ContentType)

	for {
		offset := s.Confirmed()

		var result ChunkResult
		var sent int
		err := s.retry.Run(ctx, "upload chunk", func(ctx context.Context) error {
			data, err := s.cursor.Read(offset, s.cursor.ChunkSize())
			if err != nil {
				return err
			}

			res, err := s.dest.UploadChunk(ctx, handle, offset, total, data)
			if err != nil {
				return err
			}
			if err := checkResult(res, offset, int64(len(data)), total); err != nil {
				return err
			}

			result, sent = res, len(data)
			return nil
		})
		if err != nil {
			return "", s.fail(span, err)
		}

		s.mu.Lock()
		s.exchanges++
		if result.Done {
			s.confirmed = total
			s.reference = s.dest.Permalink(result.ResourceID)
			s.status = StatusCompleted
		} else {
			s.confirmed = result.Confirmed
		}
		confirmed, ref := s.confirmed, s.reference
		s.mu.Unlock()

		span.AddEvent("chunk", trace.WithAttributes(
			attribute.Int64("upload.offset", offset),
			attribute.Int("upload.bytes", sent),
		))
		if s.observer != nil {
			s.observer.OnProgress(confirmed, total)
		}

		if result.Done {
			span.SetAttributes(attribute.String("upload.reference", ref))
			s.logger.Debug("upload complete", "reference", ref)
			return ref, nil
		}
	}
}

// checkResult rejects answers that would move the cursor somewhere it cannot go.
func checkResult(res ChunkResult, offset, sent, total int64) error {
	if res.Done {
		if res.ResourceID == "" {
			return retry.Permanent("upload chunk", fmt.Errorf("%w: terminal response without resource id", shared.ErrMalformedResponse))
		}
		if offset+sent != total {
			return retry.Permanent("upload chunk", fmt.Errorf("%w: destination finished at %d of %d bytes",
				shared.ErrSizeMismatch, offset+sent, total))
		}
		return nil
	}

	switch {
	case res.Confirmed < offset:
		return retry.Permanent("upload chunk", fmt.Errorf("%w: confirmed %d behind offset %d",
			shared.ErrNonSequential, res.Confirmed, offset))
	case res.Confirmed == offset:
		return &retry.Fault{Kind: retry.TransientServer, Op: "upload chunk", Err: errNoProgress}
	case res.Confirmed > offset+sent:
		return retry.Permanent("upload chunk", fmt.Errorf("%w: confirmed %d past sent range [%d, %d)",
			shared.ErrMalformedResponse, res.Confirmed, offset, offset+sent))
	}
	return nil
}

func (s *Session) fail(span trace.Span, err error) error {
	s.mu.Lock()
	s.status = StatusFailed
	s.mu.Unlock()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Debug("upload failed", "err", err, "kind", retry.KindOf(err))
	return fmt.Errorf("%w: %w", shared.ErrUploadFailed, err)
}
