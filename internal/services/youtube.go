package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"multiupload/internal/models"
)

// YouTube platform limits.
const (
	MaxYouTubeTitle = 100
	MaxYouTubeTags  = 500
)

// YouTubeWatchURL is the public URL template for an uploaded video id.
const YouTubeWatchURL = "https://www.youtube.com/watch?v=%s"

// YouTubeUploader uploads through a single resumable insert session.
type YouTubeUploader struct {
	target  models.Target
	service *youtube.Service
	logger  *slog.Logger

	// ChunkSize is the resumable upload chunk size. Zero uses the library default.
	ChunkSize int
}

// NewYouTube creates an uploader that sends requests through client, which
// must already carry the account's OAuth credentials.
func NewYouTube(ctx context.Context, target models.Target, client *http.Client, logger *slog.Logger, opts ...option.ClientOption) (*YouTubeUploader, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, models.E(models.KindInternal, "youtube service", fmt.Errorf("failed to initialize YouTube service: %w", err))
	}
	return &YouTubeUploader{
		target:  target,
		service: service,
		logger:  logger.With("target", target.String(), "platform", string(models.YouTube)),
	}, nil
}

func (u *YouTubeUploader) Platform() models.Platform { return models.YouTube }

// Upload inserts the video with its snippet and status.
func (u *YouTubeUploader) Upload(ctx context.Context, req *models.UploadRequest) (*models.UploadResult, error) {
	f, size, err := openVideo(req.VideoPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tags := req.Tags
	if len(tags) > MaxYouTubeTags {
		tags = tags[:MaxYouTubeTags]
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncateRunes(req.Title, MaxYouTubeTitle),
			Description: req.Description,
			Tags:        tags,
			CategoryId:  req.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           strings.ToLower(req.Privacy),
			SelfDeclaredMadeForKids: req.MadeForKids,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	lastDecile := int64(-1)
	progress := &ProgressReader{
		Reader: f,
		Total:  size,
		OnProgress: func(current, total int64) {
			if d := current * 10 / total; d != lastDecile {
				lastDecile = d
				u.logger.Debug("upload progress", "percent", d*10, "bytes", current, "total", total)
			}
		},
	}

	var mediaOpts []googleapi.MediaOption
	if u.ChunkSize > 0 {
		mediaOpts = append(mediaOpts, googleapi.ChunkSize(u.ChunkSize))
	}

	u.logger.Info("starting upload", "file", req.VideoPath, "bytes", size, "title", video.Snippet.Title)
	resp, err := u.service.Videos.Insert([]string{"snippet", "status"}, video).
		Media(progress, mediaOpts...).
		Context(ctx).
		Do()
	if err != nil {
		u.logger.Error("upload failed", "error", err)
		return models.Failure(u.target, classifyYouTube(err)), nil
	}

	u.logger.Info("upload complete", "video_id", resp.Id)
	return &models.UploadResult{
		Success:  true,
		Platform: models.YouTube,
		Account:  u.target.Account,
		VideoID:  resp.Id,
		VideoURL: fmt.Sprintf(YouTubeWatchURL, resp.Id),
	}, nil
}

// classifyYouTube keeps the API's error payload intact and assigns a kind.
func classifyYouTube(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		payload := strings.TrimSpace(gerr.Body)
		if payload == "" {
			payload = gerr.Error()
		}
		e := fmt.Errorf("YouTube API error (HTTP %d): %s", gerr.Code, payload)
		if gerr.Code >= 500 {
			return models.Transient("youtube upload", e)
		}
		return models.E(models.KindProtocol, "youtube upload", e)
	}
	return models.Transient("youtube upload", err)
}
