// Package auth obtains and persists per-account platform credentials.
package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"multiupload/internal/config"
	"multiupload/internal/handlers"
	"multiupload/internal/models"
)

// Handle is a usable credential for one target.
type Handle struct {
	Target models.Target

	// YouTube
	Token  *oauth2.Token
	Client *http.Client

	// TikTok
	TikTok *models.TikTokToken
}

// AccessToken returns the bearer token for the target's platform.
func (h *Handle) AccessToken() string {
	switch {
	case h.TikTok != nil:
		return h.TikTok.AccessToken
	case h.Token != nil:
		return h.Token.AccessToken
	}
	return ""
}

// AuthorizeFunc performs the interactive step: show authURL to the user and
// return the code delivered to the redirect carrying state.
type AuthorizeFunc func(ctx context.Context, target models.Target, authURL, state string) (string, error)

// Store loads, refreshes and creates credentials. It is safe for concurrent
// use; only the interactive step is serialized because the callback port is
// shared.
type Store struct {
	cfg    *config.Config
	logger *slog.Logger

	// HTTPClient is used for token endpoint calls.
	HTTPClient *http.Client
	// Authorize overrides the browser and callback listener flow.
	Authorize AuthorizeFunc
	// OpenURL opens the authorization page. The URL is always printed as well.
	OpenURL func(url string) error
	// Out receives the authorization prompt.
	Out io.Writer
	Now func() time.Time

	// YouTubeOAuth overrides the client secrets file.
	YouTubeOAuth *oauth2.Config
	// TikTokTokenURL and TikTokAuthURL override the TikTok OAuth endpoints.
	TikTokTokenURL string
	TikTokAuthURL  string

	interactive sync.Mutex
}

// NewStore creates a Store with production defaults.
func NewStore(cfg *config.Config, logger *slog.Logger) *Store {
	return &Store{
		cfg:            cfg,
		logger:         logger,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		OpenURL:        OpenBrowser,
		Out:            os.Stdout,
		Now:            time.Now,
		TikTokTokenURL: config.TikTokTokenURL,
		TikTokAuthURL:  config.TikTokAuthURL,
	}
}

// Authenticate returns a credential for target, reusing a stored token when
// it is still valid, refreshing when possible and otherwise running the
// interactive authorization.
func (s *Store) Authenticate(ctx context.Context, target models.Target) (*Handle, error) {
	acct, err := s.cfg.Account(target)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("target", target.String())

	switch target.Platform {
	case models.YouTube:
		return s.youtube(ctx, target, acct, logger)
	case models.TikTok:
		return s.tiktok(ctx, target, acct, logger)
	}
	return nil, models.E(models.KindConfig, "authenticate", fmt.Errorf("unknown platform %q", target.Platform))
}

// authorize runs the interactive step under the store-wide lock.
func (s *Store) authorize(ctx context.Context, target models.Target, authURL, state string) (string, error) {
	s.interactive.Lock()
	defer s.interactive.Unlock()

	if s.Authorize != nil {
		return s.Authorize(ctx, target, authURL, state)
	}

	l := handlers.NewListener(fmt.Sprintf("localhost:%d", s.cfg.OAuth.CallbackPort), state, s.logger)
	if err := l.Start(); err != nil {
		return "", err
	}
	defer l.Close()

	fmt.Fprintf(s.Out, "\nAuthorize %s by opening this URL in your browser:\n%s\n\n", target, authURL)
	if s.OpenURL != nil {
		if err := s.OpenURL(authURL); err != nil {
			s.logger.Warn("could not open browser", "error", err)
		}
	}
	return l.Wait(ctx, s.cfg.AuthTimeout())
}

func (s *Store) persist(path string, v any, logger *slog.Logger) {
	if err := writeJSON(path, v); err != nil {
		logger.Error("failed to save token", "file", path, "error", err)
		return
	}
	logger.Debug("token saved", "file", path)
}
