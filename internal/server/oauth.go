package server

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/gpyt/internal/shared"
	"golang.org/x/oauth2"
)

// DefaultCallbackPath is served when the redirect URI carries no path.
const DefaultCallbackPath = "/callback"

var donePage = template.Must(template.New("done").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>gpyt: {{.Title}}</title>
    <style>
        body { font-family: Roboto, -apple-system, "Segoe UI", sans-serif; display: flex;
               align-items: center; justify-content: center; height: 100vh; margin: 0; background: #f1f3f4; }
        .card { text-align: center; background: #fff; padding: 2rem 3rem; border-radius: 8px;
                box-shadow: 0 1px 3px rgba(60,64,67,0.3); }
        h1 { color: {{.Color}}; margin: 0 0 1rem 0; font-weight: 500; }
        p { color: #5f6368; margin: 0; }
    </style>
</head>
<body>
    <div class="card">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

type page struct {
	Title   string
	Message string
	Color   string
}

// OAuthResult carries the outcome of one authorization code callback.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler receives the Google consent redirect, checks the state token and trades the code for a token.
// Only the first callback is processed.
type OAuthHandler struct {
	config     *oauth2.Config
	state      string
	path       string
	resultChan chan OAuthResult
	once       sync.Once

	mu          sync.Mutex
	callbackHit bool
}

// NewOAuthHandler creates a handler for config's redirect URL. state should come from [shared.GenerateState].
func NewOAuthHandler(config *oauth2.Config, state string) *OAuthHandler {
	return &OAuthHandler{
		config:     config,
		state:      state,
		path:       CallbackPath(config.RedirectURL),
		resultChan: make(chan OAuthResult, 1),
	}
}

// CallbackPath extracts the path component of a redirect URI.
func CallbackPath(redirectURL string) string {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return DefaultCallbackPath
	}
	return u.Path
}

func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusConflict)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)})
		h.render(w, http.StatusBadRequest, page{Title: "Authorization failed", Message: "The state token did not match.", Color: "#d93025"})
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.Send(OAuthResult{err: err})
		h.render(w, http.StatusBadRequest, page{Title: "Authorization failed", Message: "Google did not return an authorization code.", Color: "#d93025"})
		return
	}

	token, err := h.config.Exchange(r.Context(), code)
	if err != nil {
		h.Send(OAuthResult{err: fmt.Errorf("%w: token exchange: %v", shared.ErrAuthFailed, err)})
		h.render(w, http.StatusBadGateway, page{Title: "Authorization failed", Message: "The token exchange with Google failed.", Color: "#d93025"})
		return
	}

	h.Send(OAuthResult{Token: token})
	h.render(w, http.StatusOK, page{
		Title:   "Authorization successful",
		Message: "gpyt can now read your Google Photos videos and upload them to YouTube. You can close this window.",
		Color:   "#1a73e8",
	})
}

func (h *OAuthHandler) render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = donePage.Execute(w, p)
}

// Send delivers result once; later calls are dropped.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result yields exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}
