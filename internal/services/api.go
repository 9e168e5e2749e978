// API service for making raw authenticated requests to Google APIs
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/shared"
)

// APIService performs raw requests against a Google API host, for debugging from the CLI.
type APIService struct {
	client
	baseURL string
}

// NewAPIService creates a raw client rooted at baseURL, the Photos Library host by default.
func NewAPIService(baseURL string, httpClient *http.Client) *APIService {
	if baseURL == "" {
		baseURL = defaultPhotosBaseURL
	}
	return &APIService{client: newClient(httpClient), baseURL: strings.TrimRight(baseURL, "/")}
}

// HostURL resolves a host name accepted by the api command. override wins when set.
func HostURL(host, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	switch strings.ToLower(host) {
	case "photos", "":
		return defaultPhotosBaseURL, nil
	case "youtube":
		return defaultYTBaseURL, nil
	default:
		return "", fmt.Errorf("%w: unknown host %q (use photos or youtube)", shared.ErrInvalidArgument, host)
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPost, path, data)
}

// Do sends data to path with method. Unlike the typed services, non-2xx answers are returned as
// responses rather than errors so they can be inspected.
func (a *APIService) Do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if data != nil {
		body = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, retry.Network(method+" "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}
