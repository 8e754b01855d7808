package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"multiupload/internal/config"
	"multiupload/internal/models"
)

func (s *Store) youtube(ctx context.Context, target models.Target, acct config.AccountConfig, logger *slog.Logger) (*Handle, error) {
	oc := s.YouTubeOAuth
	if oc == nil {
		var err error
		if oc, err = s.cfg.YouTubeOAuthConfig(); err != nil {
			return nil, models.E(models.KindAuth, "youtube auth", err)
		}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)

	var tok oauth2.Token
	found, err := readJSON(acct.TokenFile, &tok)
	if err != nil {
		logger.Warn("ignoring unreadable token file", "error", err)
		found = false
	}

	switch {
	case found && tok.Valid():
		logger.Debug("reusing stored token")
		return s.youtubeHandle(ctx, target, oc, &tok), nil
	case found && tok.RefreshToken != "":
		fresh, err := oc.TokenSource(ctx, &tok).Token()
		if err == nil {
			logger.Info("token refreshed")
			s.persist(acct.TokenFile, fresh, logger)
			return s.youtubeHandle(ctx, target, oc, fresh), nil
		}
		logger.Warn("token refresh failed, re-authorizing", "error", err)
	}

	state := uuid.NewString()
	authURL := oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	code, err := s.authorize(ctx, target, authURL, state)
	if err != nil {
		return nil, err
	}
	fresh, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, models.E(models.KindAuth, "youtube auth", fmt.Errorf("code exchange failed: %w", err))
	}
	logger.Info("authorization complete")
	s.persist(acct.TokenFile, fresh, logger)
	return s.youtubeHandle(ctx, target, oc, fresh), nil
}

func (s *Store) youtubeHandle(ctx context.Context, target models.Target, oc *oauth2.Config, tok *oauth2.Token) *Handle {
	return &Handle{Target: target, Token: tok, Client: oc.Client(ctx, tok)}
}
