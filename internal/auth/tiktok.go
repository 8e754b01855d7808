package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"multiupload/internal/config"
	"multiupload/internal/models"
)

func (s *Store) tiktok(ctx context.Context, target models.Target, acct config.AccountConfig, logger *slog.Logger) (*Handle, error) {
	creds, err := config.LoadTikTokCredentials()
	if err != nil {
		return nil, models.E(models.KindAuth, "tiktok auth", err)
	}
	oc := s.cfg.TikTokOAuthConfig(creds)
	oc.Endpoint.AuthURL = s.TikTokAuthURL
	oc.Endpoint.TokenURL = s.TikTokTokenURL

	var tok models.TikTokToken
	found, err := readJSON(acct.TokenFile, &tok)
	if err != nil {
		logger.Warn("ignoring unreadable token file", "error", err)
		found = false
	}
	if found && tok.AccessToken == "" {
		found = false
	}

	switch {
	case found && !tok.Expired(s.Now()):
		logger.Debug("reusing stored token")
		return &Handle{Target: target, TikTok: &tok}, nil
	case found && tok.RefreshToken != "":
		fresh, err := s.tiktokToken(ctx, oc, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {tok.RefreshToken},
		})
		if err == nil {
			if fresh.RefreshToken == "" {
				fresh.RefreshToken = tok.RefreshToken
			}
			logger.Info("token refreshed")
			s.persist(acct.TokenFile, fresh, logger)
			return &Handle{Target: target, TikTok: fresh}, nil
		}
		logger.Warn("token refresh failed, re-authorizing", "error", err)
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	code, err := s.authorize(ctx, target, tiktokAuthURL(oc, state, verifier), state)
	if err != nil {
		return nil, err
	}
	fresh, err := s.tiktokToken(ctx, oc, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {oc.RedirectURL},
		"code_verifier": {verifier},
	})
	if err != nil {
		return nil, err
	}
	logger.Info("authorization complete", "open_id", fresh.OpenID)
	s.persist(acct.TokenFile, fresh, logger)
	return &Handle{Target: target, TikTok: fresh}, nil
}

// tiktokAuthURL builds the authorization URL by hand: TikTok expects
// client_key rather than client_id and comma-separated scopes.
func tiktokAuthURL(oc *oauth2.Config, state, verifier string) string {
	params := url.Values{}
	params.Add("client_key", oc.ClientID)
	params.Add("response_type", "code")
	params.Add("scope", strings.Join(oc.Scopes, ","))
	params.Add("redirect_uri", oc.RedirectURL)
	params.Add("state", state)
	params.Add("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	params.Add("code_challenge_method", "S256")
	return oc.Endpoint.AuthURL + "?" + params.Encode()
}

// tiktokToken posts a token grant and converts the response into a record.
func (s *Store) tiktokToken(ctx context.Context, oc *oauth2.Config, form url.Values) (*models.TikTokToken, error) {
	form.Set("client_key", oc.ClientID)
	form.Set("client_secret", oc.ClientSecret)
	op := "tiktok " + form.Get("grant_type")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oc.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, models.E(models.KindAuth, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, models.E(models.KindAuth, op, fmt.Errorf("token request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.E(models.KindAuth, op, fmt.Errorf("failed to read token response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, models.E(models.KindAuth, op, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, tokenError(body)))
	}

	var tr models.TikTokTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, models.E(models.KindAuth, op, fmt.Errorf("failed to decode token response: %w", err))
	}
	if tr.Error != "" || tr.AccessToken == "" {
		return nil, models.E(models.KindAuth, op, errors.New(tokenError(body)))
	}
	return models.NewTikTokToken(&tr, s.Now()), nil
}

func tokenError(body []byte) string {
	if desc := gjson.GetBytes(body, "error_description").String(); desc != "" {
		return gjson.GetBytes(body, "error").String() + ": " + desc
	}
	if e := gjson.GetBytes(body, "error"); e.Exists() && e.String() != "" {
		return e.String()
	}
	if len(body) == 0 {
		return "empty response"
	}
	return string(body)
}
