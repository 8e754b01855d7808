// Package orchestrator fans one video out to every requested target.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"multiupload/internal/auth"
	"multiupload/internal/config"
	"multiupload/internal/models"
	"multiupload/internal/services"
	"multiupload/internal/validator"
)

// Authenticator yields a credential for a target.
type Authenticator interface {
	Authenticate(ctx context.Context, target models.Target) (*auth.Handle, error)
}

// Validator checks a video file.
type Validator interface {
	Validate(ctx context.Context, path string) *validator.Result
}

// UploaderFactory builds the adapter for an authenticated target.
type UploaderFactory func(ctx context.Context, target models.Target, h *auth.Handle) (services.Uploader, error)

// Backoff waits 2s, 4s, 8s and so on between retries, capped at 30s.
func Backoff(attempt int) time.Duration {
	if attempt > 4 {
		return 30 * time.Second
	}
	return min(2*time.Second<<attempt, 30*time.Second)
}

// Orchestrator runs uploads.
type Orchestrator struct {
	cfg       *config.Config
	auth      Authenticator
	validator Validator
	logger    *slog.Logger

	Factories map[models.Platform]UploaderFactory
	RunLog    *RunLog
	// MaxRetries bounds extra upload attempts for retryable failures.
	MaxRetries int
	Backoff    func(attempt int) time.Duration
	Now        func() time.Time
}

// New creates an Orchestrator using the production adapters.
func New(cfg *config.Config, authn Authenticator, v Validator, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		auth:       authn,
		validator:  v,
		logger:     logger,
		Factories:  DefaultFactories(cfg, logger),
		RunLog:     &RunLog{Path: cfg.LogFile},
		MaxRetries: cfg.UploadSettings.MaxRetries,
		Backoff:    Backoff,
		Now:        time.Now,
	}
}

// DefaultFactories wires the YouTube and TikTok adapters.
func DefaultFactories(cfg *config.Config, logger *slog.Logger) map[models.Platform]UploaderFactory {
	return map[models.Platform]UploaderFactory{
		models.YouTube: func(ctx context.Context, target models.Target, h *auth.Handle) (services.Uploader, error) {
			return services.NewYouTube(ctx, target, h.Client, logger)
		},
		models.TikTok: func(ctx context.Context, target models.Target, h *auth.Handle) (services.Uploader, error) {
			u := services.NewTikTok(target, h.AccessToken(), logger)
			u.PrivacyLevel = cfg.UploadSettings.TikTokPrivacyLevel
			u.StatusTimeout = cfg.TikTokStatusTimeout()
			return u, nil
		},
	}
}

type task struct {
	key    string
	target models.Target
	err    error
}

type keyedResult struct {
	key    string
	result *models.UploadResult
}

// ResolveTargets picks the explicit list when non-empty, else the metadata
// platforms, and collapses duplicates by canonical target name.
func ResolveTargets(explicit []string, md *models.Metadata) []string {
	raw := explicit
	if len(raw) == 0 {
		raw = md.Platforms
	}
	keys := lo.FilterMap(raw, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		if t, err := models.ParseTarget(s); err == nil {
			return t.String(), true
		}
		return s, s != ""
	})
	return lo.Uniq(keys)
}

// Run validates the video, uploads to every target concurrently and appends
// the run log. The error return covers run-level failures only; per-target
// failures are in the report.
func (o *Orchestrator) Run(ctx context.Context, md *models.Metadata, explicit []string) (*Report, error) {
	check := o.validator.Validate(ctx, md.VideoFile)
	if !check.Valid {
		return nil, check.Err
	}

	keys := ResolveTargets(explicit, md)
	if len(keys) == 0 {
		return nil, models.E(models.KindConfig, "resolve targets", fmt.Errorf("no target platforms in metadata or arguments"))
	}

	report := &Report{
		RunID:    uuid.NewString(),
		Started:  o.Now(),
		Video:    md.VideoFile,
		Info:     check.Info,
		Warnings: check.Warnings,
		Targets:  keys,
		Titles:   titles(md),
		Results:  make(map[string]*models.UploadResult, len(keys)),
	}
	logger := o.logger.With("run_id", report.RunID)
	logger.Info("upload run started", "video", md.VideoFile, "targets", strings.Join(keys, ","))

	results := make(chan keyedResult, len(keys))
	var g errgroup.Group
	g.SetLimit(len(keys))
	for _, key := range keys {
		t, err := models.ParseTarget(key)
		tk := task{key: key, target: t, err: err}
		g.Go(func() error {
			results <- keyedResult{key: tk.key, result: o.runTarget(ctx, md, tk, logger)}
			return nil
		})
	}
	g.Wait()
	close(results)

	for kr := range results {
		report.Results[kr.key] = kr.result
	}

	if err := o.RunLog.Append(report); err != nil {
		logger.Warn("failed to write run log", "file", o.RunLog.Path, "error", err)
	}
	logger.Info("upload run finished", "succeeded", report.Succeeded(), "total", len(report.Results))
	return report, nil
}

func titles(md *models.Metadata) []LanguageTitle {
	return lo.Map(md.LanguageKeys(), func(k string, _ int) LanguageTitle {
		return LanguageTitle{Language: k, Title: md.Languages[k].Title}
	})
}

// runTarget authenticates then uploads. It never panics.
func (o *Orchestrator) runTarget(ctx context.Context, md *models.Metadata, tk task, logger *slog.Logger) (res *models.UploadResult) {
	target := tk.target
	logger = logger.With("target", tk.key)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("upload task panicked", "panic", r)
			res = models.Failure(target, models.E(models.KindInternal, "upload", fmt.Errorf("panic: %v", r)))
		}
	}()

	if tk.err != nil {
		return models.Failure(target, models.E(models.KindConfig, "target", tk.err))
	}
	factory, ok := o.Factories[target.Platform]
	if !ok {
		return models.Failure(target, models.E(models.KindConfig, "target", fmt.Errorf("no uploader for platform %q", target.Platform)))
	}

	handle, err := o.auth.Authenticate(ctx, target)
	if err != nil {
		logger.Error("authentication failed", "error", err)
		return models.Failure(target, fmt.Errorf("authentication failed: %w", err))
	}

	video := md.VideoFor(target.Account)
	if video != md.VideoFile {
		logger.Info("using language-specific video", "file", video)
		if check := o.validator.Validate(ctx, video); !check.Valid {
			return models.Failure(target, check.Err)
		}
	}

	uploader, err := factory(ctx, target, handle)
	if err != nil {
		return models.Failure(target, err)
	}
	req := o.request(target, md.Language(target.Account), video)

	for attempt := 0; ; attempt++ {
		res, err := uploader.Upload(ctx, req)
		if err != nil {
			res = models.Failure(target, err)
		}
		res.Platform, res.Account, res.Attempts = target.Platform, target.Account, attempt+1
		if res.Success || !res.Retryable || attempt >= o.MaxRetries {
			return res
		}

		wait := o.Backoff(attempt)
		logger.Warn("retrying upload", "attempt", attempt+1, "wait", wait, "error", res.Error)
		select {
		case <-ctx.Done():
			return res
		case <-time.After(wait):
		}
	}
}

func (o *Orchestrator) request(target models.Target, lang *models.LanguageMetadata, video string) *models.UploadRequest {
	switch target.Platform {
	case models.TikTok:
		return &models.UploadRequest{
			VideoPath:   video,
			Title:       lang.TikTokTitle(),
			Description: lang.Description,
		}
	default:
		return &models.UploadRequest{
			VideoPath:   video,
			Title:       lang.TitleOrDefault(),
			Description: lang.YouTubeDescription(),
			Tags:        lang.Tags,
			CategoryID:  o.cfg.UploadSettings.YouTubeCategory,
			Privacy:     o.cfg.YouTubePrivacy(),
		}
	}
}
