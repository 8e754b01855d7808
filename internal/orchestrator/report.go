package orchestrator

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"multiupload/internal/models"
	"multiupload/internal/validator"
)

// LanguageTitle pairs a metadata language block with its title.
type LanguageTitle struct {
	Language string
	Title    string
}

// Report is the outcome of one run.
type Report struct {
	RunID    string
	Started  time.Time
	Video    string
	Info     *validator.VideoInfo
	Warnings []string
	Targets  []string
	Titles   []LanguageTitle
	Results  map[string]*models.UploadResult
}

// Succeeded counts successful targets.
func (r *Report) Succeeded() int {
	return lo.CountBy(lo.Values(r.Results), func(res *models.UploadResult) bool { return res.Success })
}

// OK reports whether every target succeeded.
func (r *Report) OK() bool {
	return len(r.Results) > 0 && r.Succeeded() == len(r.Results)
}

// Keys returns result keys in a stable order.
func (r *Report) Keys() []string {
	keys := lo.Keys(r.Results)
	sort.Strings(keys)
	return keys
}

// WriteSummary prints the per-target outcome and the success count.
func (r *Report) WriteSummary(w io.Writer) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nUpload Summary\n%s\n\n", rule, rule)

	for _, key := range r.Keys() {
		res := r.Results[key]
		if res.Success {
			fmt.Fprintf(w, "✓ %s: SUCCESS\n", key)
			if res.VideoURL != "" {
				fmt.Fprintf(w, "  URL: %s\n", res.VideoURL)
			}
			if res.PublishID != "" {
				fmt.Fprintf(w, "  Publish ID: %s\n", res.PublishID)
			}
			if res.Status == "TIMEOUT" {
				fmt.Fprintf(w, "  Status: submitted, processing outcome unknown\n")
			}
		} else {
			fmt.Fprintf(w, "✗ %s: FAILED\n", key)
			fmt.Fprintf(w, "  Error: %s\n", res.Error)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%s\nTotal: %d/%d successful\n%s\n\n", rule, r.Succeeded(), len(r.Results), rule)
}
