package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tidwall/gjson"

	"multiupload/internal/models"
)

// TikTok Content Posting API.
const (
	TikTokAPIBase    = "https://open.tiktokapis.com"
	tiktokInitPath   = "/v2/post/publish/video/init/"
	tiktokStatusPath = "/v2/post/publish/status/fetch/"
)

// MaxCaptionLength is TikTok's caption limit in characters.
const MaxCaptionLength = 2200

// Publish states reported by the status endpoint.
const (
	StatusPublishComplete    = "PUBLISH_COMPLETE"
	StatusProcessingDownload = "PROCESSING_DOWNLOAD"
	StatusFailed             = "FAILED"
	StatusTimeout            = "TIMEOUT"
)

// privacyErrorCode is returned with HTTP 403 when an unaudited app posts to a
// public account.
const privacyErrorCode = "unaudited_client_can_only_post_to_private_accounts"

// TikTok adapter defaults.
const (
	DefaultPrivacyLevel  = "SELF_ONLY"
	DefaultPollInterval  = 5 * time.Second
	DefaultStatusTimeout = 60 * time.Second
)

// TikTokUploader implements the Direct Post chunked upload.
type TikTokUploader struct {
	target      models.Target
	accessToken string
	logger      *slog.Logger

	BaseURL string
	// PrivacyLevel is always sent instead of any caller-supplied value.
	PrivacyLevel  string
	PollInterval  time.Duration
	StatusTimeout time.Duration

	APIClient    *http.Client
	UploadClient *http.Client
}

// NewTikTok creates an uploader authenticated with accessToken.
func NewTikTok(target models.Target, accessToken string, logger *slog.Logger) *TikTokUploader {
	return &TikTokUploader{
		target:        target,
		accessToken:   accessToken,
		logger:        logger.With("target", target.String(), "platform", string(models.TikTok)),
		BaseURL:       TikTokAPIBase,
		PrivacyLevel:  DefaultPrivacyLevel,
		PollInterval:  DefaultPollInterval,
		StatusTimeout: DefaultStatusTimeout,
		APIClient:     &http.Client{Timeout: 60 * time.Second},
		UploadClient:  &http.Client{Timeout: 15 * time.Minute},
	}
}

func (u *TikTokUploader) Platform() models.Platform { return models.TikTok }

// Caption joins title and description with a blank line and truncates the
// result to MaxCaptionLength characters.
func Caption(title, description string) string {
	caption := title
	if description != "" {
		caption = title + "\n\n" + description
	}
	r := []rune(caption)
	if len(r) > MaxCaptionLength {
		return string(r[:MaxCaptionLength-3]) + "..."
	}
	return caption
}

type postInfo struct {
	Title                 string `json:"title"`
	PrivacyLevel          string `json:"privacy_level"`
	DisableDuet           bool   `json:"disable_duet"`
	DisableComment        bool   `json:"disable_comment"`
	DisableStitch         bool   `json:"disable_stitch"`
	VideoCoverTimestampMS int    `json:"video_cover_timestamp_ms"`
}

type sourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int64  `json:"video_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunkCount int    `json:"total_chunk_count"`
}

type initRequest struct {
	PostInfo   postInfo   `json:"post_info"`
	SourceInfo sourceInfo `json:"source_info"`
}

// Upload runs init, the chunk loop and status polling.
func (u *TikTokUploader) Upload(ctx context.Context, req *models.UploadRequest) (*models.UploadResult, error) {
	f, size, err := openVideo(req.VideoPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	plan := PlanChunks(size)
	u.logger.Info("starting upload", "file", req.VideoPath, "bytes", size, "chunk_size", plan.ChunkSize, "chunks", plan.Total)

	publishID, uploadURL, err := u.initUpload(ctx, Caption(req.Title, req.Description), plan)
	if err != nil {
		u.logger.Error("init failed", "error", err)
		return models.Failure(u.target, err), nil
	}
	logger := u.logger.With("publish_id", publishID)
	logger.Info("upload initialized")

	for i := 0; i < plan.Total; i++ {
		if err := u.putChunk(ctx, f, uploadURL, plan, i); err != nil {
			logger.Error("chunk upload failed", "chunk", i+1, "error", err)
			res := models.Failure(u.target, err)
			res.PublishID = publishID
			return res, nil
		}
		logger.Debug("chunk uploaded", "chunk", i+1, "of", plan.Total)
	}

	status, err := u.waitForPublish(ctx, publishID, logger)
	if err != nil {
		logger.Error("publish failed", "error", err)
		res := models.Failure(u.target, err)
		res.PublishID = publishID
		return res, nil
	}
	logger.Info("upload complete", "status", status)
	return &models.UploadResult{
		Success:   true,
		Platform:  models.TikTok,
		Account:   u.target.Account,
		PublishID: publishID,
		Status:    status,
	}, nil
}

func (u *TikTokUploader) initUpload(ctx context.Context, caption string, plan ChunkPlan) (string, string, error) {
	body, err := json.Marshal(initRequest{
		PostInfo: postInfo{
			Title:                 caption,
			PrivacyLevel:          u.PrivacyLevel,
			VideoCoverTimestampMS: 1000,
		},
		SourceInfo: sourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       plan.Size,
			ChunkSize:       plan.ChunkSize,
			TotalChunkCount: plan.Total,
		},
	})
	if err != nil {
		return "", "", models.E(models.KindInternal, "tiktok init", err)
	}

	resp, err := u.postJSON(ctx, tiktokInitPath, body)
	if err != nil {
		return "", "", models.Transient("tiktok init", fmt.Errorf("failed to connect to TikTok API: %w", err))
	}
	if err := checkAPIResponse("tiktok init", resp.status, resp.body); err != nil {
		return "", "", err
	}

	publishID := gjson.GetBytes(resp.body, "data.publish_id").String()
	uploadURL := gjson.GetBytes(resp.body, "data.upload_url").String()
	if publishID == "" || uploadURL == "" {
		return "", "", models.E(models.KindProtocol, "tiktok init", fmt.Errorf("init response missing publish_id or upload_url: %s", resp.body))
	}
	return publishID, uploadURL, nil
}

func (u *TikTokUploader) putChunk(ctx context.Context, f *os.File, uploadURL string, plan ChunkPlan, i int) error {
	op := fmt.Sprintf("tiktok chunk %d/%d", i+1, plan.Total)
	start, end := plan.Range(i)
	n := end - start + 1

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, io.NewSectionReader(f, start, n))
	if err != nil {
		return models.E(models.KindInternal, op, err)
	}
	req.ContentLength = n
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, plan.Size))

	resp, err := u.UploadClient.Do(req)
	if err != nil {
		return models.Transient(op, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusPartialContent:
		return nil
	}
	e := fmt.Errorf("upload rejected (HTTP %d): %s", resp.StatusCode, body)
	if resp.StatusCode >= 500 {
		return models.Transient(op, e)
	}
	return models.E(models.KindProtocol, op, e)
}

// waitForPublish polls until a terminal state or StatusTimeout. Timing out is
// not an error: the video was submitted and its outcome is unknown.
func (u *TikTokUploader) waitForPublish(ctx context.Context, publishID string, logger *slog.Logger) (string, error) {
	body, err := json.Marshal(map[string]string{"publish_id": publishID})
	if err != nil {
		return "", models.E(models.KindInternal, "tiktok status", err)
	}
	deadline := time.Now().Add(u.StatusTimeout)

	for {
		status, failReason, err := u.fetchStatus(ctx, body)
		switch {
		case err != nil:
			logger.Warn("status check failed", "error", err)
		case status == StatusPublishComplete || status == StatusProcessingDownload:
			return status, nil
		case status == StatusFailed:
			return "", models.E(models.KindProtocol, "tiktok publish", fmt.Errorf("TikTok rejected the video: %s", failReason))
		default:
			logger.Debug("publish pending", "status", status)
		}

		if !time.Now().Add(u.PollInterval).Before(deadline) {
			return StatusTimeout, nil
		}
		select {
		case <-ctx.Done():
			return "", models.E(models.KindTransport, "tiktok status", ctx.Err())
		case <-time.After(u.PollInterval):
		}
	}
}

func (u *TikTokUploader) fetchStatus(ctx context.Context, body []byte) (status, failReason string, err error) {
	resp, err := u.postJSON(ctx, tiktokStatusPath, body)
	if err != nil {
		return "", "", err
	}
	if err := checkAPIResponse("tiktok status", resp.status, resp.body); err != nil {
		return "", "", err
	}
	data := gjson.GetBytes(resp.body, "data")
	return data.Get("status").String(), data.Get("fail_reason").String(), nil
}

type apiResponse struct {
	status int
	body   []byte
}

func (u *TikTokUploader) postJSON(ctx context.Context, path string, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+u.accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := u.APIClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &apiResponse{status: resp.StatusCode, body: data}, nil
}

// ErrRateLimited and ErrPrivateAccountRequired identify the two API
// rejections that have a specific remedy.
var (
	ErrRateLimited            = errors.New("TikTok rate limit reached: wait a few minutes and retry")
	ErrPrivateAccountRequired = errors.New("TikTok only accepts posts to private accounts from unaudited apps: set the account to private in the TikTok app and retry")
)

// checkAPIResponse maps a TikTok API response to a classified error.
func checkAPIResponse(op string, status int, body []byte) error {
	code := gjson.GetBytes(body, "error.code").String()
	message := gjson.GetBytes(body, "error.message").String()

	switch {
	case status == http.StatusTooManyRequests:
		return models.E(models.KindProtocol, op, fmt.Errorf("%w (%s)", ErrRateLimited, body))
	case status == http.StatusForbidden && code == privacyErrorCode:
		return models.E(models.KindProtocol, op, fmt.Errorf("%w (%s)", ErrPrivateAccountRequired, message))
	case status >= 500:
		return models.Transient(op, fmt.Errorf("TikTok API error (HTTP %d): %s", status, body))
	case status != http.StatusOK:
		return models.E(models.KindProtocol, op, fmt.Errorf("TikTok API error (HTTP %d): %s", status, body))
	case code != "" && code != "ok":
		return models.E(models.KindProtocol, op, fmt.Errorf("TikTok API error %s: %s (log_id %s)",
			code, message, gjson.GetBytes(body, "error.log_id").String()))
	}
	return nil
}
