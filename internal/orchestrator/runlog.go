package orchestrator

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// RunLog is the append-only, human-readable record of upload runs.
type RunLog struct {
	Path string
	mu   sync.Mutex
}

// Append writes one block for r.
func (l *RunLog) Append(r *Report) error {
	var b bytes.Buffer
	rule := strings.Repeat("=", 80)

	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "Upload Log - %s\n", r.Started.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "Video: %s\n", r.Video)
	fmt.Fprintf(&b, "Targets: %s\n", strings.Join(r.Targets, ", "))
	for _, lt := range r.Titles {
		title := lt.Title
		if title == "" {
			title = "N/A"
		}
		fmt.Fprintf(&b, "Title (%s): %s\n", lt.Language, title)
	}
	fmt.Fprintf(&b, "\nResults:\n")

	for _, key := range r.Keys() {
		res := r.Results[key]
		fmt.Fprintf(&b, "\n  %s:\n", key)
		if res.Success {
			fmt.Fprintf(&b, "    Status: SUCCESS\n")
			if res.VideoURL != "" {
				fmt.Fprintf(&b, "    URL: %s\n", res.VideoURL)
			}
			if res.VideoID != "" {
				fmt.Fprintf(&b, "    ID: %s\n", res.VideoID)
			}
			if res.PublishID != "" {
				fmt.Fprintf(&b, "    Publish ID: %s\n", res.PublishID)
			}
			if res.Status != "" {
				fmt.Fprintf(&b, "    Publish Status: %s\n", res.Status)
			}
		} else {
			fmt.Fprintf(&b, "    Status: FAILED\n")
			fmt.Fprintf(&b, "    Error: %s\n", res.Error)
		}
		if res.Attempts > 1 {
			fmt.Fprintf(&b, "    Attempts: %d\n", res.Attempts)
		}
	}
	fmt.Fprintf(&b, "\n%s\n", rule)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b.Bytes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ErrNoLog is returned by Read before the first run.
var ErrNoLog = errors.New("no upload log found")

// Read returns the whole log.
func (l *RunLog) Read() (string, error) {
	data, err := os.ReadFile(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoLog
	}
	return string(data), err
}
