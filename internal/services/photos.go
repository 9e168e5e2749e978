// Google Photos Library API source implementation
//
// Response types based on https://developers.google.com/photos/library/reference/rest
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gpyt/internal/ledger"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/shared"
)

const defaultPhotosBaseURL = "https://photoslibrary.googleapis.com"

// maxPageSize is the largest page mediaItems:search accepts.
const maxPageSize = 100

// PhotosMediaItem is a media item as returned by the Library API.
type PhotosMediaItem struct {
	ID            string              `json:"id"`
	Description   string              `json:"description"`
	ProductURL    string              `json:"productUrl"`
	BaseURL       string              `json:"baseUrl"`
	MimeType      string              `json:"mimeType"`
	Filename      string              `json:"filename"`
	MediaMetadata PhotosMediaMetadata `json:"mediaMetadata"`
}

// PhotosMediaMetadata holds the item's capture metadata.
type PhotosMediaMetadata struct {
	CreationTime string `json:"creationTime"`
	Width        string `json:"width"`
	Height       string `json:"height"`
}

// PhotosAlbum is an album as returned by the Library API.
type PhotosAlbum struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	ProductURL      string `json:"productUrl"`
	MediaItemsCount string `json:"mediaItemsCount"`
	IsWriteable     bool   `json:"isWriteable"`
}

type mediaItemsSearch struct {
	MediaItems    []PhotosMediaItem `json:"mediaItems"`
	NextPageToken string            `json:"nextPageToken"`
}

type albumList struct {
	Albums        []PhotosAlbum `json:"albums"`
	NextPageToken string        `json:"nextPageToken"`
}

// Stream is an open download of an item's original bytes.
type Stream struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64 // -1 when the response carried no length
}

// PhotosService reads videos from Google Photos and keeps the ledger marker in an app-created album.
type PhotosService struct {
	client
	baseURL string
	logger  *log.Logger
}

// NewPhotosService creates a source over an authorized httpClient.
func NewPhotosService(baseURL string, httpClient *http.Client, logger *log.Logger) *PhotosService {
	if baseURL == "" {
		baseURL = defaultPhotosBaseURL
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &PhotosService{client: newClient(httpClient), baseURL: baseURL, logger: logger}
}

// Name returns the service name.
func (p *PhotosService) Name() string {
	return "Google Photos"
}

// Ping lists a single album.
func (p *PhotosService) Ping(ctx context.Context) error {
	return p.do(ctx, request{
		op:     "ping photos",
		method: http.MethodGet,
		url:    p.baseURL + "/v1/albums?pageSize=1",
	}, &albumList{})
}

// ListVideos returns one page of the library filtered to videos. An empty pageToken starts from the
// beginning; the page's NextPageToken is empty on the last page.
func (p *PhotosService) ListVideos(ctx context.Context, pageToken string, pageSize int) (*models.Page, error) {
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	body := map[string]any{
		"pageSize": pageSize,
		"filters": map[string]any{
			"mediaTypeFilter": map[string]any{"mediaTypes": []string{"VIDEO"}},
		},
	}
	if pageToken != "" {
		body["pageToken"] = pageToken
	}

	var resp mediaItemsSearch
	if err := p.do(ctx, request{
		op:     "list videos",
		method: http.MethodPost,
		url:    p.baseURL + "/v1/mediaItems:search",
		body:   body,
	}, &resp); err != nil {
		return nil, err
	}

	page := &models.Page{NextPageToken: resp.NextPageToken, Items: make([]models.MediaItem, 0, len(resp.MediaItems))}
	for _, item := range resp.MediaItems {
		page.Items = append(page.Items, item.toModel())
	}
	return page, nil
}

// MediaItem fetches a single item by id.
func (p *PhotosService) MediaItem(ctx context.Context, id string) (*PhotosMediaItem, error) {
	var item PhotosMediaItem
	if err := p.do(ctx, request{
		op:     "get media item",
		method: http.MethodGet,
		url:    p.baseURL + "/v1/mediaItems/" + url.PathEscape(id),
	}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// downloadURL asks for the original video bytes.
func downloadURL(item models.MediaItem) (string, error) {
	if item.BaseURL == "" {
		return "", retry.Permanent("download", fmt.Errorf("%w: item %s has no base url", shared.ErrInvalidInput, item.ID))
	}
	return item.BaseURL + "=dv", nil
}

// ProbeSize reads the download's Content-Length without fetching the body.
func (p *PhotosService) ProbeSize(ctx context.Context, item models.MediaItem) (int64, error) {
	u, err := downloadURL(item)
	if err != nil {
		return 0, err
	}

	resp, err := p.send(ctx, request{op: "probe size", method: http.MethodHead, url: u})
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	size := resp.ContentLength
	if size < 0 {
		if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			size = n
		}
	}
	if size < 0 {
		return 0, retry.Permanent("probe size", fmt.Errorf("%w: missing content length for %s", shared.ErrMalformedResponse, item.ID))
	}
	return size, nil
}

// OpenStream starts the download. The caller closes Body.
func (p *PhotosService) OpenStream(ctx context.Context, item models.MediaItem) (*Stream, error) {
	u, err := downloadURL(item)
	if err != nil {
		return nil, err
	}

	resp, err := p.send(ctx, request{op: "open stream", method: http.MethodGet, url: u})
	if err != nil {
		return nil, err
	}

	return &Stream{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// Albums lists the albums this app created.
func (p *PhotosService) Albums(ctx context.Context) ([]PhotosAlbum, error) {
	var albums []PhotosAlbum
	pageToken := ""
	for {
		q := url.Values{"excludeNonAppCreatedData": {"true"}, "pageSize": {"50"}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var resp albumList
		if err := p.do(ctx, request{
			op:     "list albums",
			method: http.MethodGet,
			url:    p.baseURL + "/v1/albums?" + q.Encode(),
		}, &resp); err != nil {
			return nil, err
		}

		albums = append(albums, resp.Albums...)
		if resp.NextPageToken == "" {
			return albums, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (p *PhotosService) findAlbum(ctx context.Context, title string) (*PhotosAlbum, error) {
	albums, err := p.Albums(ctx)
	if err != nil {
		return nil, err
	}
	for _, album := range albums {
		if album.Title == title {
			return &album, nil
		}
	}
	return nil, nil
}

// FindMarker returns the first item of the app-created album named albumTitle.
func (p *PhotosService) FindMarker(ctx context.Context, albumTitle string) (*ledger.Marker, error) {
	album, err := p.findAlbum(ctx, albumTitle)
	if err != nil {
		return nil, err
	}
	if album == nil {
		return nil, fmt.Errorf("%w: no album %q", shared.ErrMarkerNotFound, albumTitle)
	}

	var resp mediaItemsSearch
	if err := p.do(ctx, request{
		op:     "search album",
		method: http.MethodPost,
		url:    p.baseURL + "/v1/mediaItems:search",
		body:   map[string]any{"albumId": album.ID, "pageSize": 1},
	}, &resp); err != nil {
		return nil, err
	}
	if len(resp.MediaItems) == 0 {
		return nil, fmt.Errorf("%w: album %q is empty", shared.ErrMarkerNotFound, albumTitle)
	}

	item := resp.MediaItems[0]
	return &ledger.Marker{ID: item.ID, AlbumID: album.ID, Description: item.Description}, nil
}

// CreateMarker uploads image into the album named albumTitle, creating the album when it does not exist,
// with an empty JSON object as the item description.
func (p *PhotosService) CreateMarker(ctx context.Context, albumTitle string, image []byte, contentType string) (*ledger.Marker, error) {
	album, err := p.findAlbum(ctx, albumTitle)
	if err != nil {
		return nil, err
	}
	if album == nil {
		album = &PhotosAlbum{}
		if err := p.do(ctx, request{
			op:     "create album",
			method: http.MethodPost,
			url:    p.baseURL + "/v1/albums",
			body:   map[string]any{"album": map[string]string{"title": albumTitle}},
		}, album); err != nil {
			return nil, err
		}
		p.logger.Debug("created album", "id", album.ID, "title", albumTitle)
	}

	token, err := p.uploadBytes(ctx, image, contentType)
	if err != nil {
		return nil, err
	}

	var resp struct {
		NewMediaItemResults []struct {
			UploadToken string          `json:"uploadToken"`
			MediaItem   PhotosMediaItem `json:"mediaItem"`
			Status      struct {
				Message string `json:"message"`
			} `json:"status"`
		} `json:"newMediaItemResults"`
	}
	if err := p.do(ctx, request{
		op:     "create marker",
		method: http.MethodPost,
		url:    p.baseURL + "/v1/mediaItems:batchCreate",
		body: map[string]any{
			"albumId": album.ID,
			"newMediaItems": []map[string]any{{
				"description":     "{}",
				"simpleMediaItem": map[string]string{"uploadToken": token},
			}},
		},
	}, &resp); err != nil {
		return nil, err
	}

	if len(resp.NewMediaItemResults) == 0 || resp.NewMediaItemResults[0].MediaItem.ID == "" {
		return nil, retry.Permanent("create marker", fmt.Errorf("%w: batchCreate returned no media item", shared.ErrMalformedResponse))
	}

	item := resp.NewMediaItemResults[0].MediaItem
	return &ledger.Marker{ID: item.ID, AlbumID: album.ID, Description: item.Description}, nil
}

// uploadBytes sends raw bytes to the upload endpoint and returns the upload token.
func (p *PhotosService) uploadBytes(ctx context.Context, data []byte, contentType string) (string, error) {
	resp, err := p.send(ctx, request{
		op:     "upload bytes",
		method: http.MethodPost,
		url:    p.baseURL + "/v1/uploads",
		raw:    data,
		headers: map[string]string{
			"Content-Type":               "application/octet-stream",
			"X-Goog-Upload-Content-Type": contentType,
			"X-Goog-Upload-Protocol":     "raw",
		},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Network("upload bytes", err)
	}
	if len(token) == 0 {
		return "", retry.Permanent("upload bytes", fmt.Errorf("%w: empty upload token", shared.ErrMalformedResponse))
	}
	return string(token), nil
}

// ReadMarker returns the marker item's description.
func (p *PhotosService) ReadMarker(ctx context.Context, id string) (string, error) {
	item, err := p.MediaItem(ctx, id)
	if err != nil {
		return "", err
	}
	return item.Description, nil
}

// WriteMarker replaces the marker item's description.
func (p *PhotosService) WriteMarker(ctx context.Context, id, description string) error {
	return p.do(ctx, request{
		op:     "write marker",
		method: http.MethodPatch,
		url:    p.baseURL + "/v1/mediaItems/" + url.PathEscape(id) + "?updateMask=description",
		body:   map[string]string{"description": description},
	}, nil)
}

func (item PhotosMediaItem) toModel() models.MediaItem {
	m := models.MediaItem{
		ID:          item.ID,
		ProductURL:  item.ProductURL,
		BaseURL:     item.BaseURL,
		Filename:    item.Filename,
		Description: item.Description,
		MimeType:    item.MimeType,
	}
	if t, err := time.Parse(time.RFC3339, item.MediaMetadata.CreationTime); err == nil {
		m.CreationTime = t
	}
	return m
}
