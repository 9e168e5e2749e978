// package services implements the HTTP clients for the Google APIs the migration talks to
//
// Google Photos (source), YouTube Data API (destination)
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/shared"
)

// Service is implemented by every API client.
type Service interface {
	// Name returns the name of the service (e.g., "Google Photos", "YouTube")
	Name() string

	// Ping performs a cheap authenticated call to check the credentials.
	Ping(ctx context.Context) error
}

// errorBodyLimit caps how much of an error response is read for the message.
const errorBodyLimit = 64 * 1024

// googleError is the error envelope shared by Google REST APIs.
type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// request describes one call made through [client.do].
type request struct {
	op      string
	method  string
	url     string
	body    any    // encoded as JSON unless raw is set
	raw     []byte // sent verbatim
	headers map[string]string
}

// client is the transport shared by the services. Failures come back as [retry.Fault] values.
type client struct {
	httpClient *http.Client
}

func newClient(httpClient *http.Client) client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return client{httpClient: httpClient}
}

// send performs req and returns the response for any 2xx status. Other statuses are
// classified and the body is closed.
func (c client) send(ctx context.Context, r request) (*http.Response, error) {
	var body io.Reader
	switch {
	case r.raw != nil:
		body = bytes.NewReader(r.raw)
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, retry.Permanent(r.op, fmt.Errorf("failed to encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, retry.Permanent(r.op, fmt.Errorf("failed to create request: %w", err))
	}
	if r.body != nil && r.raw == nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.Network(r.op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusFault(r.op, resp)
	}
	return resp, nil
}

// do performs req and decodes a JSON response into result when it is non-nil.
func (c client) do(ctx context.Context, r request, result any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return retry.Network(r.op, err)
		}
		return retry.Permanent(r.op, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err))
	}
	return nil
}

// statusFault builds the fault for an unexpected status, using the API's error message when present.
func statusFault(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))

	msg := strings.TrimSpace(string(data))
	var ge googleError
	if err := json.Unmarshal(data, &ge); err == nil && ge.Error.Message != "" {
		msg = ge.Error.Message
	}

	sentinel := shared.ErrAPIRequest
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		sentinel = shared.ErrNotAuthenticated
	case resp.StatusCode == http.StatusNotFound:
		sentinel = shared.ErrMediaItemNotFound
	case resp.StatusCode >= 500:
		sentinel = shared.ErrServiceUnavailable
	}

	if msg == "" {
		return retry.FromStatus(op, resp.StatusCode, sentinel)
	}
	return retry.FromStatus(op, resp.StatusCode, fmt.Errorf("%w: %s", sentinel, msg))
}
