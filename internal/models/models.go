package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies an upload destination.
type Platform string

const (
	YouTube Platform = "youtube"
	TikTok  Platform = "tiktok"
)

// DefaultAccount is used when a target string has no account label.
const DefaultAccount = "english"

// Target selects one configured account on one platform.
type Target struct {
	Platform Platform
	Account  string
}

// ParseTarget parses strings like "youtube_english". The platform is the text
// before the first underscore; the rest is the account label.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, fmt.Errorf("empty target")
	}
	platform, account, found := strings.Cut(s, "_")
	if !found || account == "" {
		account = DefaultAccount
	}
	t := Target{Platform: Platform(strings.ToLower(platform)), Account: account}
	if t.Platform != YouTube && t.Platform != TikTok {
		return t, fmt.Errorf("unknown platform %q in target %q", platform, s)
	}
	return t, nil
}

func (t Target) String() string {
	return string(t.Platform) + "_" + t.Account
}

// UploadRequest is the platform-neutral description of one upload.
type UploadRequest struct {
	VideoPath   string
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string // public, unlisted, private (YouTube only)
	MadeForKids bool
}

// UploadResult represents the outcome of uploading to one target.
type UploadResult struct {
	Success  bool     `json:"success"`
	Platform Platform `json:"platform"`
	Account  string   `json:"account"`

	// YouTube
	VideoID  string `json:"video_id,omitempty"`
	VideoURL string `json:"video_url,omitempty"`

	// TikTok
	PublishID string `json:"publish_id,omitempty"`
	Status    string `json:"status,omitempty"`

	Error     string    `json:"error,omitempty"`
	Kind      ErrorKind `json:"error_kind,omitempty"`
	Retryable bool      `json:"-"`
	Attempts  int       `json:"attempts,omitempty"`
}

// Failure builds a failed result for target from err.
func Failure(target Target, err error) *UploadResult {
	return &UploadResult{
		Success:   false,
		Platform:  target.Platform,
		Account:   target.Account,
		Error:     err.Error(),
		Kind:      KindOf(err),
		Retryable: IsRetryable(err),
	}
}

// TikTokTokenResponse represents the OAuth token response from TikTok
type TikTokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	OpenID           string `json:"open_id"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`

	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// TikTokToken is the persisted TikTok token record.
type TikTokToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	OpenID       string `json:"open_id,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`

	// ExpiresAt is zero for records written before expiry tracking existed.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewTikTokToken converts an exchange response into a record, stamping the
// absolute expiry relative to now.
func NewTikTokToken(resp *TikTokTokenResponse, now time.Time) *TikTokToken {
	tok := &TikTokToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		OpenID:       resp.OpenID,
		Scope:        resp.Scope,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
	}
	if resp.ExpiresIn > 0 {
		tok.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return tok
}

// Expired reports whether the token is known to be expired at now. Records
// without an expiry are never considered expired.
func (t *TikTokToken) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	// Leave a minute of slack so the token survives the upload.
	return !now.Before(t.ExpiresAt.Add(-time.Minute))
}
