// Package validator checks local video files against the constraints shared
// by every supported platform.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"multiupload/internal/models"
)

// Platform limits. MaxDuration is the tightest limit across platforms.
const (
	MaxFileSize       = 4 << 30
	MaxDuration       = 600
	ShortFormDuration = 60
	RecommendedWidth  = 1080
	RecommendedHeight = 1920
)

// SupportedFormats lists accepted file extensions.
var SupportedFormats = []string{".mp4", ".mov", ".avi", ".mkv"}

var (
	ErrNotFound          = errors.New("video file not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrTooLarge          = errors.New("file too large")
	ErrTooLong           = errors.New("video too long")
	ErrUnreadable        = errors.New("could not read video information")
)

// Result is the outcome of Validate.
type Result struct {
	Valid    bool
	Info     *VideoInfo
	Warnings []string
	Err      error
}

// Validator checks files before upload.
type Validator struct {
	prober Prober
	logger *slog.Logger
}

// New creates a Validator. A nil prober means ffprobe with the default timeout.
func New(prober Prober, logger *slog.Logger) *Validator {
	if prober == nil {
		prober = &FFProbe{Timeout: DefaultProbeTimeout}
	}
	return &Validator{prober: prober, logger: logger}
}

func invalid(err error) *Result {
	return &Result{Valid: false, Err: models.E(models.KindValidation, "validate", err)}
}

// Validate inspects path. Failures are reported in the result, never returned.
func (v *Validator) Validate(ctx context.Context, path string) *Result {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return invalid(fmt.Errorf("%w: %s", ErrNotFound, path))
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !lo.Contains(SupportedFormats, ext) {
		return invalid(fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(SupportedFormats, ", ")))
	}

	if st.Size() > MaxFileSize {
		return invalid(fmt.Errorf("%w: %.2fGB (max 4GB)", ErrTooLarge, float64(st.Size())/(1<<30)))
	}

	var warnings []string
	info, err := v.prober.Probe(ctx, path)
	switch {
	case errors.Is(err, ErrNoVideoStream):
		return invalid(fmt.Errorf("%w: %v", ErrUnreadable, err))
	case err != nil:
		v.logger.Warn("media probe unavailable, using assumed video properties", "file", path, "error", err)
		info = fallbackInfo(st.Size())
		warnings = append(warnings, "media probe unavailable: resolution assumed and duration unknown")
	}

	if info.Size == 0 {
		info.Size = st.Size()
	}

	if info.Duration > MaxDuration {
		return invalid(fmt.Errorf("%w: %.1fs (max %ds)", ErrTooLong, info.Duration, MaxDuration))
	}

	if info.Width != RecommendedWidth || info.Height != RecommendedHeight {
		warnings = append(warnings, fmt.Sprintf("resolution %dx%d differs from recommended %dx%d for vertical video",
			info.Width, info.Height, RecommendedWidth, RecommendedHeight))
	}
	if info.Duration > ShortFormDuration {
		warnings = append(warnings, fmt.Sprintf("duration %.1fs exceeds the %ds short-form limit", info.Duration, ShortFormDuration))
	}

	return &Result{Valid: true, Info: info, Warnings: warnings}
}
