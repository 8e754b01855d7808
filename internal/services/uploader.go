// Package services contains the platform upload adapters.
package services

import (
	"context"
	"fmt"
	"io"
	"os"

	"multiupload/internal/models"
)

// Uploader publishes one video to one platform account.
//
// Upload reports every platform or network failure through a result with
// Success=false. The error return is reserved for preconditions, such as a
// missing file, detected before any network call.
type Uploader interface {
	Platform() models.Platform
	Upload(ctx context.Context, req *models.UploadRequest) (*models.UploadResult, error)
}

// openVideo opens path for reading and returns its size.
func openVideo(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, models.E(models.KindValidation, "open video", fmt.Errorf("video file not found: %w", err))
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, models.E(models.KindValidation, "open video", err)
	}
	if st.Size() == 0 {
		f.Close()
		return nil, 0, models.E(models.KindValidation, "open video", fmt.Errorf("cannot upload empty file %s", path))
	}
	return f, st.Size(), nil
}

// ProgressReader is a wrapper around io.Reader that tracks progress
type ProgressReader struct {
	Reader     io.Reader
	Total      int64
	Current    int64
	OnProgress func(current, total int64)
}

func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	pr.Current += int64(n)
	if pr.OnProgress != nil && n > 0 {
		pr.OnProgress(pr.Current, pr.Total)
	}
	return n, err
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
