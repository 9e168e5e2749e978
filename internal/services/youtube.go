// YouTube Data API v3 destination implementation
//
// Uploads use the resumable protocol described at
// https://developers.google.com/youtube/v3/guides/using_resumable_upload_protocol
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/desertthunder/gpyt/internal/upload"
)

const (
	defaultYTBaseURL   = "https://www.googleapis.com"
	defaultYTPermalink = "https://youtu.be/"
)

// statusResumeIncomplete is the "Resume Incomplete" answer to a partial chunk.
const statusResumeIncomplete = 308

// YouTubeChannel is the authenticated user's channel.
type YouTubeChannel struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string `json:"title"`
		CustomURL   string `json:"customUrl"`
		Description string `json:"description"`
	} `json:"snippet"`
}

// videoResource is the metadata part sent when a resumable upload is initiated.
type videoResource struct {
	Snippet struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags,omitempty"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

// YouTubeService uploads videos with the resumable protocol.
type YouTubeService struct {
	client
	baseURL   string
	permalink string
	logger    *log.Logger
}

// NewYouTubeService creates a destination over an authorized httpClient.
func NewYouTubeService(baseURL string, httpClient *http.Client, logger *log.Logger) *YouTubeService {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &YouTubeService{
		client:    newClient(httpClient),
		baseURL:   baseURL,
		permalink: defaultYTPermalink,
		logger:    logger,
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube"
}

// Ping fetches the authenticated channel.
func (y *YouTubeService) Ping(ctx context.Context) error {
	_, err := y.Channel(ctx)
	return err
}

// Channel returns the channel videos will be uploaded to.
func (y *YouTubeService) Channel(ctx context.Context) (*YouTubeChannel, error) {
	var resp struct {
		Items []YouTubeChannel `json:"items"`
	}
	if err := y.do(ctx, request{
		op:     "get channel",
		method: http.MethodGet,
		url:    y.baseURL + "/youtube/v3/channels?part=snippet&mine=true",
	}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, retry.Permanent("get channel", fmt.Errorf("%w: account has no channel", shared.ErrAPIRequest))
	}
	return &resp.Items[0], nil
}

// Initiate opens a resumable upload session and returns its URI.
func (y *YouTubeService) Initiate(ctx context.Context, req upload.UploadRequest) (string, error) {
	var video videoResource
	video.Snippet.Title = req.Target.Title
	video.Snippet.Description = req.Target.Description
	video.Snippet.Tags = req.Target.Tags
	video.Status.PrivacyStatus = req.Target.Visibility.String()
	if video.Status.PrivacyStatus == "" {
		video.Status.PrivacyStatus = "private"
	}

	q := url.Values{"uploadType": {"resumable"}, "part": {"snippet,status"}}
	resp, err := y.send(ctx, request{
		op:     "initiate upload",
		method: http.MethodPost,
		url:    y.baseURL + "/upload/youtube/v3/videos?" + q.Encode(),
		body:   video,
		headers: map[string]string{
			"X-Upload-Content-Length": strconv.FormatInt(req.Size, 10),
			"X-Upload-Content-Type":   req.ContentType,
		},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	location := resp.Header.Get("Location")
	if location == "" {
		return "", retry.Permanent("initiate upload", fmt.Errorf("%w: no session location", shared.ErrMalformedResponse))
	}
	y.logger.Debug("resumable session opened", "title", req.Target.Title, "size", req.Size)
	return location, nil
}

// UploadChunk sends data at offset of a total-byte upload to the session URI.
func (y *YouTubeService) UploadChunk(ctx context.Context, handle string, offset, total int64, data []byte) (upload.ChunkResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, handle, bytes.NewReader(data))
	if err != nil {
		return upload.ChunkResult{}, retry.Permanent("upload chunk", fmt.Errorf("failed to create request: %w", err))
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Range", contentRange(offset, int64(len(data)), total))

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return upload.ChunkResult{}, retry.Network("upload chunk", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == statusResumeIncomplete:
		_, _ = io.Copy(io.Discard, resp.Body)
		confirmed, err := parseRange(resp.Header.Get("Range"))
		if err != nil {
			return upload.ChunkResult{}, retry.Permanent("upload chunk", err)
		}
		return upload.ChunkResult{Confirmed: confirmed}, nil

	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var video struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return upload.ChunkResult{}, retry.Network("upload chunk", err)
			}
			return upload.ChunkResult{}, retry.Permanent("upload chunk", fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err))
		}
		return upload.ChunkResult{Done: true, Confirmed: total, ResourceID: video.ID}, nil

	default:
		return upload.ChunkResult{}, statusFault("upload chunk", resp)
	}
}

// Permalink returns the short watch URL of a video.
func (y *YouTubeService) Permalink(id string) string {
	return y.permalink + id
}

// contentRange formats the header for n bytes at offset. An empty body only declares the total.
func contentRange(offset, n, total int64) string {
	if n == 0 {
		return fmt.Sprintf("bytes */%d", total)
	}
	return fmt.Sprintf("bytes %d-%d/%d", offset, offset+n-1, total)
}

// parseRange reads "bytes=0-N" and returns N+1. No header means nothing was stored yet.
func parseRange(header string) (int64, error) {
	if header == "" {
		return 0, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, fmt.Errorf("%w: range %q", shared.ErrMalformedResponse, header)
	}
	_, last, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, fmt.Errorf("%w: range %q", shared.ErrMalformedResponse, header)
	}

	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: range %q", shared.ErrMalformedResponse, header)
	}
	return n + 1, nil
}
