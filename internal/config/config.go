package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
	"gopkg.in/yaml.v3"

	"multiupload/internal/models"
)

// Defaults applied to absent configuration keys.
const (
	DefaultYouTubeClientSecrets = "credentials/youtube_credentials.json"
	DefaultLogFile              = "logs/upload_log.txt"
	DefaultCallbackPort         = 8000
	DefaultOAuthTimeout         = 300
	DefaultVideoPrivacy         = "public"
	DefaultYouTubeCategory      = "20"
	DefaultMaxRetries           = 3
	DefaultTikTokPrivacy        = "SELF_ONLY"
	DefaultTikTokStatusTimeout  = 60
)

// TikTok OAuth endpoints.
const (
	TikTokAuthURL  = "https://www.tiktok.com/v2/auth/authorize/"
	TikTokTokenURL = "https://open.tiktokapis.com/v2/oauth/token/"
)

// AccountConfig is the static per-target configuration.
type AccountConfig struct {
	ChannelID string `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	UserID    string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	TokenFile string `json:"token_file" yaml:"token_file"`
}

// Accounts holds accounts keyed by platform then label.
type Accounts struct {
	YouTube map[string]AccountConfig `json:"youtube" yaml:"youtube"`
	TikTok  map[string]AccountConfig `json:"tiktok" yaml:"tiktok"`
}

// UploadSettings holds upload defaults shared by every run.
type UploadSettings struct {
	VideoPrivacy               string `json:"video_privacy" yaml:"video_privacy"`
	YouTubeCategory            string `json:"youtube_category" yaml:"youtube_category"`
	MaxRetries                 int    `json:"max_retries" yaml:"max_retries"`
	TikTokPrivacyLevel         string `json:"tiktok_privacy_level,omitempty" yaml:"tiktok_privacy_level,omitempty"`
	TikTokStatusTimeoutSeconds int    `json:"tiktok_status_timeout_seconds,omitempty" yaml:"tiktok_status_timeout_seconds,omitempty"`
}

// OAuthSettings controls the local authorization callback.
type OAuthSettings struct {
	CallbackPort   int `json:"callback_port" yaml:"callback_port"`
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Config holds all configuration for the application
type Config struct {
	Accounts             Accounts       `json:"accounts" yaml:"accounts"`
	UploadSettings       UploadSettings `json:"upload_settings" yaml:"upload_settings"`
	YouTubeClientSecrets string         `json:"youtube_client_secrets,omitempty" yaml:"youtube_client_secrets,omitempty"`
	LogFile              string         `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	OAuth                OAuthSettings  `json:"oauth" yaml:"oauth"`
}

// Default returns a configuration with every default applied and no accounts.
func Default() *Config {
	return &Config{
		Accounts: Accounts{
			YouTube: map[string]AccountConfig{},
			TikTok:  map[string]AccountConfig{},
		},
		UploadSettings: UploadSettings{
			VideoPrivacy:               DefaultVideoPrivacy,
			YouTubeCategory:            DefaultYouTubeCategory,
			MaxRetries:                 DefaultMaxRetries,
			TikTokPrivacyLevel:         DefaultTikTokPrivacy,
			TikTokStatusTimeoutSeconds: DefaultTikTokStatusTimeout,
		},
		YouTubeClientSecrets: DefaultYouTubeClientSecrets,
		LogFile:              DefaultLogFile,
		OAuth: OAuthSettings{
			CallbackPort:   DefaultCallbackPort,
			TimeoutSeconds: DefaultOAuthTimeout,
		},
	}
}

// Load reads a configuration document. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON. Absent keys keep their defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, models.E(models.KindConfig, "load config", fmt.Errorf("failed to read config file '%s': %w", filename, err))
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, models.E(models.KindConfig, "load config", fmt.Errorf("failed to parse config file '%s': %w", filename, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, models.E(models.KindConfig, "load config", fmt.Errorf("invalid config file '%s': %w", filename, err))
	}
	return cfg, nil
}

// Validate checks that every configured account names a token file.
func (c *Config) Validate() error {
	for label, acct := range c.Accounts.YouTube {
		if acct.TokenFile == "" {
			return fmt.Errorf("youtube account %q has no token_file", label)
		}
	}
	for label, acct := range c.Accounts.TikTok {
		if acct.TokenFile == "" {
			return fmt.Errorf("tiktok account %q has no token_file", label)
		}
	}
	if c.UploadSettings.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

// Account returns the configuration for target.
func (c *Config) Account(target models.Target) (AccountConfig, error) {
	var accounts map[string]AccountConfig
	switch target.Platform {
	case models.YouTube:
		accounts = c.Accounts.YouTube
	case models.TikTok:
		accounts = c.Accounts.TikTok
	default:
		return AccountConfig{}, models.E(models.KindConfig, "account", fmt.Errorf("unknown platform %q", target.Platform))
	}
	acct, ok := accounts[target.Account]
	if !ok {
		return AccountConfig{}, models.E(models.KindConfig, "account", fmt.Errorf("no %s account %q configured", target.Platform, target.Account))
	}
	return acct, nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filename, data, 0o644)
}

// CallbackURL is the redirect URI served by the local callback listener.
func (c *Config) CallbackURL() string {
	return fmt.Sprintf("http://localhost:%d/callback", c.OAuth.CallbackPort)
}

// AuthTimeout bounds the wait for an authorization code.
func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.OAuth.TimeoutSeconds) * time.Second
}

// TikTokStatusTimeout bounds TikTok status polling.
func (c *Config) TikTokStatusTimeout() time.Duration {
	return time.Duration(c.UploadSettings.TikTokStatusTimeoutSeconds) * time.Second
}

// YouTubePrivacy returns the YouTube privacy status in the API's casing.
func (c *Config) YouTubePrivacy() string {
	return strings.ToLower(c.UploadSettings.VideoPrivacy)
}

// YouTubeOAuthConfig reads the OAuth client file downloaded from the Google
// Cloud console and points its redirect at the local callback listener.
func (c *Config) YouTubeOAuthConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(c.YouTubeClientSecrets)
	if err != nil {
		return nil, fmt.Errorf("failed to read YouTube client secrets '%s': %w", c.YouTubeClientSecrets, err)
	}
	oc, err := google.ConfigFromJSON(data, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YouTube client secrets '%s': %w", c.YouTubeClientSecrets, err)
	}
	oc.RedirectURL = c.CallbackURL()
	return oc, nil
}

// TikTokCredentials are supplied out-of-band through the environment.
type TikTokCredentials struct {
	ClientID     string `envconfig:"TIKTOK_CLIENT_ID"`
	ClientSecret string `envconfig:"TIKTOK_CLIENT_SECRET"`
}

// ErrTikTokCredentials is returned when the TikTok client key pair is absent.
var ErrTikTokCredentials = errors.New("TIKTOK_CLIENT_ID and TIKTOK_CLIENT_SECRET must be set (see .env)")

// LoadTikTokCredentials reads the TikTok client key pair from the environment.
func LoadTikTokCredentials() (TikTokCredentials, error) {
	var creds TikTokCredentials
	if err := envconfig.Process("", &creds); err != nil {
		return creds, fmt.Errorf("process environment: %w", err)
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return creds, ErrTikTokCredentials
	}
	return creds, nil
}

// TikTokOAuthConfig describes the TikTok authorization endpoints for creds.
func (c *Config) TikTokOAuthConfig(creds TikTokCredentials) *oauth2.Config {
	return &oauth2.Config{
		RedirectURL:  c.CallbackURL(),
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       []string{"user.info.basic", "video.upload", "video.publish"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  TikTokAuthURL,
			TokenURL: TikTokTokenURL,
		},
	}
}

// LoadEnv loads a .env file into the process environment when it exists.
// Variables already set take precedence.
func LoadEnv(filename string) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(filename); err != nil {
		return fmt.Errorf("failed to load env file '%s': %w", filename, err)
	}
	return nil
}

// WriteEnvTemplate writes a .env skeleton holding the TikTok key names.
func WriteEnvTemplate(filename string) error {
	return godotenv.Write(map[string]string{
		"TIKTOK_CLIENT_ID":     "your_client_id_here",
		"TIKTOK_CLIENT_SECRET": "your_client_secret_here",
	}, filename)
}

// LoadMetadata reads and parses a metadata document.
func LoadMetadata(filename string) (*models.Metadata, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, models.E(models.KindConfig, "load metadata", fmt.Errorf("failed to read metadata file '%s': %w", filename, err))
	}
	md, err := models.ParseMetadata(data)
	if err != nil {
		return nil, models.E(models.KindConfig, "load metadata", fmt.Errorf("failed to parse metadata file '%s': %w", filename, err))
	}
	if md.VideoFile == "" {
		return nil, models.E(models.KindConfig, "load metadata", fmt.Errorf("no video_file specified in '%s'", filename))
	}
	return md, nil
}

// Template returns the starter configuration written by the setup wizard.
func Template() *Config {
	cfg := Default()
	for _, lang := range []string{"english", "japanese"} {
		cfg.Accounts.YouTube[lang] = AccountConfig{TokenFile: filepath.Join("credentials", "youtube_tokens", lang+"_token.json")}
		cfg.Accounts.TikTok[lang] = AccountConfig{TokenFile: filepath.Join("credentials", "tiktok_tokens", lang+"_token.json")}
	}
	return cfg
}
