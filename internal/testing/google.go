package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakeVideo is a video in the fake photo library.
type FakeVideo struct {
	ID           string
	Filename     string
	Description  string
	MimeType     string
	CreationTime string
	Data         []byte
}

type fakeAlbum struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	items []string
}

type fakeItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
}

type fakeSession struct {
	title    string
	total    int64
	received []byte
}

// GoogleServer fakes the subset of the Photos Library and YouTube Data APIs the migration uses.
//
// Video ids handed out by the fake YouTube are "yt1", "yt2", ... in completion order.
type GoogleServer struct {
	*httptest.Server

	mu       sync.Mutex
	videos   []FakeVideo
	albums   []*fakeAlbum
	items    map[string]*fakeItem
	sessions map[string]*fakeSession
	uploaded map[string][]byte
	titles   map[string]string
	nextID   int
	videoSeq int

	// ChunkStatus, when set, can override the status of chunk call n (0-based). Returning 0 keeps the
	// normal behavior.
	ChunkStatus func(n int) int

	Initiations int
	Chunks      int
	Requests    []string
}

// NewGoogleServer starts a fake serving videos. It is closed when the test ends.
func NewGoogleServer(t *testing.T, videos ...FakeVideo) *GoogleServer {
	t.Helper()

	g := &GoogleServer{
		videos:   videos,
		items:    map[string]*fakeItem{},
		sessions: map[string]*fakeSession{},
		uploaded: map[string][]byte{},
		titles:   map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/mediaItems:search", g.search)
	mux.HandleFunc("POST /v1/mediaItems:batchCreate", g.batchCreate)
	mux.HandleFunc("GET /v1/mediaItems/{id}", g.getItem)
	mux.HandleFunc("PATCH /v1/mediaItems/{id}", g.patchItem)
	mux.HandleFunc("GET /v1/albums", g.listAlbums)
	mux.HandleFunc("POST /v1/albums", g.createAlbum)
	mux.HandleFunc("POST /v1/uploads", g.uploadBytes)
	mux.HandleFunc("GET /download/{name}", g.download)
	mux.HandleFunc("POST /upload/youtube/v3/videos", g.initiate)
	mux.HandleFunc("PUT /session/{id}", g.chunk)
	mux.HandleFunc("GET /youtube/v3/channels", g.channels)

	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.Requests = append(g.Requests, r.Method+" "+r.URL.Path)
		g.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(g.Close)
	return g
}

// Uploaded returns the bytes received for a finished video id.
func (g *GoogleServer) Uploaded(id string) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uploaded[id]
}

// UploadedTitle returns the title a finished video was created with.
func (g *GoogleServer) UploadedTitle(id string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.titles[id]
}

// UploadCount is the number of finished videos.
func (g *GoogleServer) UploadCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.uploaded)
}

// MarkerDescription returns the description of the first item of the album titled title.
func (g *GoogleServer) MarkerDescription(title string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, a := range g.albums {
		if a.Title == title && len(a.items) > 0 {
			return g.items[a.items[0]].Description, true
		}
	}
	return "", false
}

// AlbumCount is the number of app-created albums.
func (g *GoogleServer) AlbumCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.albums)
}

// ProductURL is the product url the fake reports for a video id.
func (g *GoogleServer) ProductURL(id string) string {
	return g.URL + "/lr/photo/" + id
}

func (g *GoogleServer) id(prefix string) string {
	g.nextID++
	return prefix + strconv.Itoa(g.nextID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func (g *GoogleServer) search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AlbumID   string `json:"albumId"`
		PageSize  int    `json:"pageSize"`
		PageToken string `json:"pageToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if body.AlbumID != "" {
		var items []fakeItem
		for _, a := range g.albums {
			if a.ID == body.AlbumID {
				for _, id := range a.items {
					items = append(items, *g.items[id])
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"mediaItems": items})
		return
	}

	start := 0
	if body.PageToken != "" {
		n, err := strconv.Atoi(body.PageToken)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad page token")
			return
		}
		start = n
	}
	size := body.PageSize
	if size <= 0 {
		size = 25
	}
	end := min(start+size, len(g.videos))

	items := []map[string]any{}
	for _, v := range g.videos[start:end] {
		items = append(items, map[string]any{
			"id":          v.ID,
			"description": v.Description,
			"productUrl":  g.ProductURL(v.ID),
			"baseUrl":     g.URL + "/download/" + v.ID,
			"mimeType":    v.MimeType,
			"filename":    v.Filename,
			"mediaMetadata": map[string]any{
				"creationTime": v.CreationTime,
			},
		})
	}

	resp := map[string]any{"mediaItems": items}
	if end < len(g.videos) {
		resp["nextPageToken"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *GoogleServer) getItem(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	item, ok := g.items[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (g *GoogleServer) patchItem(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("updateMask") != "description" {
		writeError(w, http.StatusBadRequest, "updateMask must be description")
		return
	}
	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	item, ok := g.items[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	item.Description = body.Description
	writeJSON(w, http.StatusOK, item)
}

func (g *GoogleServer) listAlbums(w http.ResponseWriter, _ *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"albums": g.albums})
}

func (g *GoogleServer) createAlbum(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Album struct {
			Title string `json:"title"`
		} `json:"album"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Album.Title == "" {
		writeError(w, http.StatusBadRequest, "album title required")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	album := &fakeAlbum{ID: g.id("album"), Title: body.Album.Title}
	g.albums = append(g.albums, album)
	writeJSON(w, http.StatusOK, album)
}

func (g *GoogleServer) uploadBytes(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Goog-Upload-Protocol") != "raw" {
		writeError(w, http.StatusBadRequest, "raw protocol required")
		return
	}
	data, _ := io.ReadAll(r.Body)
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, g.id("upload-token-"))
}

func (g *GoogleServer) batchCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AlbumID       string `json:"albumId"`
		NewMediaItems []struct {
			Description     string `json:"description"`
			SimpleMediaItem struct {
				UploadToken string `json:"uploadToken"`
			} `json:"simpleMediaItem"`
		} `json:"newMediaItems"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.NewMediaItems) == 0 {
		writeError(w, http.StatusBadRequest, "newMediaItems required")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var album *fakeAlbum
	for _, a := range g.albums {
		if a.ID == body.AlbumID {
			album = a
		}
	}
	if album == nil {
		writeError(w, http.StatusBadRequest, "unknown album")
		return
	}

	var results []map[string]any
	for _, n := range body.NewMediaItems {
		item := &fakeItem{ID: g.id("item"), Description: n.Description, Filename: "marker.png"}
		g.items[item.ID] = item
		album.items = append(album.items, item.ID)
		results = append(results, map[string]any{"uploadToken": n.SimpleMediaItem.UploadToken, "mediaItem": item})
	}
	writeJSON(w, http.StatusOK, map[string]any{"newMediaItemResults": results})
}

func (g *GoogleServer) download(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(r.PathValue("name"), "=dv")
	if !ok {
		writeError(w, http.StatusBadRequest, "download suffix required")
		return
	}

	g.mu.Lock()
	var video *FakeVideo
	for i := range g.videos {
		if g.videos[i].ID == id {
			video = &g.videos[i]
		}
	}
	g.mu.Unlock()

	if video == nil {
		writeError(w, http.StatusNotFound, "no such video")
		return
	}
	w.Header().Set("Content-Type", video.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(video.Data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(video.Data)
	}
}

func (g *GoogleServer) initiate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("uploadType") != "resumable" || q.Get("part") != "snippet,status" {
		writeError(w, http.StatusBadRequest, "resumable snippet,status upload required")
		return
	}
	total, err := strconv.ParseInt(r.Header.Get("X-Upload-Content-Length"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "X-Upload-Content-Length required")
		return
	}
	var video struct {
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Status struct {
			PrivacyStatus string `json:"privacyStatus"`
		} `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&video); err != nil || video.Snippet.Title == "" {
		writeError(w, http.StatusBadRequest, "snippet.title required")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.Initiations++
	id := g.id("s")
	g.sessions[id] = &fakeSession{title: video.Snippet.Title, total: total}
	w.Header().Set("Location", g.URL+"/session/"+id)
	w.WriteHeader(http.StatusOK)
}

func (g *GoogleServer) chunk(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	call := g.Chunks
	g.Chunks++
	if g.ChunkStatus != nil {
		if status := g.ChunkStatus(call); status != 0 {
			writeError(w, status, fmt.Sprintf("injected status %d", status))
			return
		}
	}

	s, ok := g.sessions[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}

	var first, last, total int64
	if _, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &first, &last, &total); err != nil && len(data) > 0 {
		writeError(w, http.StatusBadRequest, "bad Content-Range")
		return
	}
	if len(data) > 0 && (first != int64(len(s.received)) || last-first+1 != int64(len(data)) || total != s.total) {
		writeError(w, http.StatusBadRequest, "Content-Range does not match session state")
		return
	}
	s.received = append(s.received, data...)

	if int64(len(s.received)) < s.total {
		if len(s.received) > 0 {
			w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", len(s.received)-1))
		}
		w.WriteHeader(308)
		return
	}

	g.videoSeq++
	id := "yt" + strconv.Itoa(g.videoSeq)
	g.uploaded[id] = s.received
	g.titles[id] = s.title
	delete(g.sessions, r.PathValue("id"))
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "snippet": map[string]any{"title": s.title}})
}

func (g *GoogleServer) channels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{{
		"id":      "UC123",
		"snippet": map[string]any{"title": "Test Channel", "customUrl": "@test"},
	}}})
}
