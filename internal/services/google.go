package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gpyt/internal/shared"
	"golang.org/x/oauth2"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

// GoogleScopes covers reading the photo library, managing the app-created marker album and uploading videos.
var GoogleScopes = []string{
	"https://www.googleapis.com/auth/photoslibrary",
	"https://www.googleapis.com/auth/photoslibrary.edit.appcreateddata",
	"https://www.googleapis.com/auth/photoslibrary.sharing",
	"https://www.googleapis.com/auth/youtube.upload",
}

// NewGoogleOAuthConfig builds the OAuth client for both services from the configured credentials.
func NewGoogleOAuthConfig(creds shared.GoogleConfig) (*oauth2.Config, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       GoogleScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
	}, nil
}

// AuthURL returns the consent URL. Offline access with a forced prompt makes Google return a refresh token.
func AuthURL(config *oauth2.Config, state string) string {
	return config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// NewGoogleClient returns an HTTP client that authorizes requests with token and refreshes it as needed.
// Refreshed tokens are written back to tokenFile when it is set.
func NewGoogleClient(ctx context.Context, config *oauth2.Config, token *oauth2.Token, tokenFile string, timeout time.Duration, logger *log.Logger) *http.Client {
	base := config.TokenSource(ctx, token)
	src := oauth2.ReuseTokenSource(token, &savingTokenSource{
		src:    base,
		path:   tokenFile,
		last:   token.AccessToken,
		logger: logger,
	})

	client := oauth2.NewClient(ctx, src)
	client.Timeout = timeout
	return client
}

// savingTokenSource persists every new access token it sees.
type savingTokenSource struct {
	src    oauth2.TokenSource
	path   string
	logger *log.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" || token.AccessToken == s.last {
		return token, nil
	}

	s.last = token.AccessToken
	if err := shared.SaveToken(s.path, token); err != nil && s.logger != nil {
		s.logger.Warn("failed to save refreshed token", "path", s.path, "err", err)
	}
	return token, nil
}
