package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiupload/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSONAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{
		"accounts": {
			"youtube": {"english": {"channel_id": "UC1", "token_file": "tok/yt_en.json"}},
			"tiktok": {"english": {"user_id": "u1", "token_file": "tok/tt_en.json"}}
		},
		"upload_settings": {"video_privacy": "PRIVATE"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "private", cfg.YouTubePrivacy())
	assert.Equal(t, DefaultYouTubeCategory, cfg.UploadSettings.YouTubeCategory)
	assert.Equal(t, DefaultMaxRetries, cfg.UploadSettings.MaxRetries)
	assert.Equal(t, DefaultTikTokPrivacy, cfg.UploadSettings.TikTokPrivacyLevel)
	assert.Equal(t, 300*time.Second, cfg.AuthTimeout())
	assert.Equal(t, 60*time.Second, cfg.TikTokStatusTimeout())
	assert.Equal(t, "http://localhost:8000/callback", cfg.CallbackURL())

	acct, err := cfg.Account(models.Target{Platform: models.TikTok, Account: "english"})
	require.NoError(t, err)
	assert.Equal(t, "u1", acct.UserID)
	assert.Equal(t, "tok/tt_en.json", acct.TokenFile)

	_, err = cfg.Account(models.Target{Platform: models.YouTube, Account: "japanese"})
	assert.Equal(t, models.KindConfig, models.KindOf(err))
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
accounts:
  youtube:
    english:
      token_file: tok/yt_en.json
upload_settings:
  max_retries: 1
oauth:
  callback_port: 8123
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.UploadSettings.MaxRetries)
	assert.Equal(t, "http://localhost:8123/callback", cfg.CallbackURL())
	assert.Equal(t, DefaultOAuthTimeout, cfg.OAuth.TimeoutSeconds)
}

func TestLoadErrorsAreConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Equal(t, models.KindConfig, models.KindOf(err))

	_, err = Load(writeFile(t, dir, "bad.json", `{"accounts":`))
	assert.Equal(t, models.KindConfig, models.KindOf(err))

	_, err = Load(writeFile(t, dir, "notoken.json", `{"accounts":{"tiktok":{"english":{"user_id":"x"}}}}`))
	assert.Equal(t, models.KindConfig, models.KindOf(err))
}

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()

	md, err := LoadMetadata(writeFile(t, dir, "meta.json", `{"video_file":"v.mp4","platforms":["youtube_english"],"english":{"title":"T"}}`))
	require.NoError(t, err)
	assert.Equal(t, "T", md.Language("english").Title)

	_, err = LoadMetadata(writeFile(t, dir, "novideo.json", `{"platforms":["youtube_english"]}`))
	assert.Equal(t, models.KindConfig, models.KindOf(err))
}

func TestTikTokCredentialsFromEnv(t *testing.T) {
	t.Setenv("TIKTOK_CLIENT_ID", "")
	t.Setenv("TIKTOK_CLIENT_SECRET", "")
	_, err := LoadTikTokCredentials()
	assert.ErrorIs(t, err, ErrTikTokCredentials)

	t.Setenv("TIKTOK_CLIENT_ID", "key")
	t.Setenv("TIKTOK_CLIENT_SECRET", "secret")
	creds, err := LoadTikTokCredentials()
	require.NoError(t, err)
	assert.Equal(t, TikTokCredentials{ClientID: "key", ClientSecret: "secret"}, creds)

	oc := Default().TikTokOAuthConfig(creds)
	assert.Equal(t, TikTokTokenURL, oc.Endpoint.TokenURL)
	assert.Equal(t, "key", oc.ClientID)
}

func TestEnvTemplateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, WriteEnvTemplate(path))

	t.Setenv("TIKTOK_CLIENT_ID", "")
	os.Unsetenv("TIKTOK_CLIENT_ID")
	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "your_client_id_here", os.Getenv("TIKTOK_CLIENT_ID"))

	assert.NoError(t, LoadEnv(filepath.Join(dir, "absent.env")))
}

func TestTemplateSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	require.NoError(t, Template().Save(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Accounts.YouTube, 2)
	assert.Len(t, cfg.Accounts.TikTok, 2)
}

func TestYouTubeOAuthConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.YouTubeClientSecrets = writeFile(t, dir, "client.json", `{"installed":{
		"client_id":"cid","client_secret":"csec",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth",
		"token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["http://localhost"]}}`)

	oc, err := cfg.YouTubeOAuthConfig()
	require.NoError(t, err)
	assert.Equal(t, "cid", oc.ClientID)
	assert.Equal(t, cfg.CallbackURL(), oc.RedirectURL)

	cfg.YouTubeClientSecrets = filepath.Join(dir, "nope.json")
	_, err = cfg.YouTubeOAuthConfig()
	assert.Error(t, err)
}
