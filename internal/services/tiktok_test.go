package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiupload/internal/logging"
	"multiupload/internal/models"
)

const mib = 1 << 20

func TestPlanChunks(t *testing.T) {
	tests := []struct {
		name      string
		size      int64
		chunkSize int64
		total     int
	}{
		{"small file goes whole", 3 * mib, 3 * mib, 1},
		{"exactly min chunk clamps to one", 5 * mib, 5 * mib, 1},
		{"between min and default clamps to one", 7 * mib, 7 * mib, 1},
		{"exactly one default chunk", 10 * mib, 10 * mib, 1},
		{"remainder absorbed by last chunk", 25 * mib, 10 * mib, 2},
		{"decimal sized file", 50_000_123, 10 * mib, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanChunks(tt.size)
			assert.Equal(t, tt.chunkSize, plan.ChunkSize)
			assert.Equal(t, tt.total, plan.Total)

			var next int64
			for i := 0; i < plan.Total; i++ {
				start, end := plan.Range(i)
				assert.Equal(t, next, start)
				next = end + 1
			}
			assert.Equal(t, tt.size, next, "ranges must cover the file exactly")
		})
	}
}

func TestPlanChunksBoundaries(t *testing.T) {
	plan := PlanChunks(25 * mib)

	start, end := plan.Range(0)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(10*mib-1), end)

	start, end = plan.Range(1)
	assert.Equal(t, int64(10*mib), start)
	assert.Equal(t, int64(25*mib-1), end)
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "Title", Caption("Title", ""))
	assert.Equal(t, "Title\n\nBody", Caption("Title", "Body"))

	exact := strings.Repeat("a", 2200-7) + "\n\n" + "bbbbb"
	assert.Equal(t, exact, Caption(strings.Repeat("a", 2200-7), "bbbbb"))

	long := Caption(strings.Repeat("あ", 1500), strings.Repeat("い", 1500))
	r := []rune(long)
	assert.Len(t, r, MaxCaptionLength)
	assert.True(t, strings.HasSuffix(long, "..."))
}

type fakeTikTok struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	init     map[string]any
	ranges   []string
	received int64
	polls    int

	initStatus int
	initBody   string
	chunkCode  func(i int) int
	statuses   []string
}

func newFakeTikTok(t *testing.T) *fakeTikTok {
	f := &fakeTikTok{t: t, initStatus: http.StatusOK, statuses: []string{"PROCESSING_UPLOAD", StatusPublishComplete}}
	r := http.NewServeMux()
	r.HandleFunc("/v2/post/publish/video/init/", f.handleInit)
	r.HandleFunc("/upload", f.handleChunk)
	r.HandleFunc("/v2/post/publish/status/fetch/", f.handleStatus)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTikTok) handleInit(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "Bearer act.test", r.Header.Get("Authorization"))
	f.mu.Lock()
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.init))
	f.mu.Unlock()

	w.WriteHeader(f.initStatus)
	if f.initBody != "" {
		io.WriteString(w, f.initBody)
		return
	}
	fmt.Fprintf(w, `{"data":{"publish_id":"v_pub_1","upload_url":%q},"error":{"code":"ok","message":""}}`, f.srv.URL+"/upload")
}

func (f *fakeTikTok) handleChunk(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, http.MethodPut, r.Method)
	assert.Equal(f.t, "video/mp4", r.Header.Get("Content-Type"))
	n, err := io.Copy(io.Discard, r.Body)
	assert.NoError(f.t, err)

	f.mu.Lock()
	i := len(f.ranges)
	f.ranges = append(f.ranges, r.Header.Get("Content-Range"))
	f.received += n
	f.mu.Unlock()

	code := http.StatusPartialContent
	if f.chunkCode != nil {
		code = f.chunkCode(i)
	}
	w.WriteHeader(code)
}

func (f *fakeTikTok) handleStatus(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	assert.Equal(f.t, "v_pub_1", body["publish_id"])

	f.mu.Lock()
	status := f.statuses[min(f.polls, len(f.statuses)-1)]
	f.polls++
	f.mu.Unlock()

	reason := ""
	if status == StatusFailed {
		reason = "file_format_check_failed"
	}
	fmt.Fprintf(w, `{"data":{"status":%q,"fail_reason":%q},"error":{"code":"ok"}}`, status, reason)
}

func (f *fakeTikTok) uploader() *TikTokUploader {
	u := NewTikTok(models.Target{Platform: models.TikTok, Account: "english"}, "act.test", logging.Discard())
	u.BaseURL = f.srv.URL
	u.PollInterval = 5 * time.Millisecond
	u.StatusTimeout = time.Second
	return u
}

func sparseVideo(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

func TestTikTokUploadChunked(t *testing.T) {
	fake := newFakeTikTok(t)
	fake.chunkCode = func(i int) int {
		if i == 1 {
			return http.StatusCreated
		}
		return http.StatusPartialContent
	}
	size := int64(25 * mib)

	res, err := fake.uploader().Upload(context.Background(), &models.UploadRequest{
		VideoPath:   sparseVideo(t, size),
		Title:       "Hello #fyp",
		Description: "desc",
		Privacy:     "public",
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "v_pub_1", res.PublishID)
	assert.Equal(t, StatusPublishComplete, res.Status)
	assert.Equal(t, "english", res.Account)

	post := fake.init["post_info"].(map[string]any)
	assert.Equal(t, "SELF_ONLY", post["privacy_level"])
	assert.Equal(t, "Hello #fyp\n\ndesc", post["title"])
	src := fake.init["source_info"].(map[string]any)
	assert.Equal(t, "FILE_UPLOAD", src["source"])
	assert.EqualValues(t, size, src["video_size"])
	assert.EqualValues(t, 10*mib, src["chunk_size"])
	assert.EqualValues(t, 2, src["total_chunk_count"])

	assert.Equal(t, []string{
		fmt.Sprintf("bytes 0-%d/%d", 10*mib-1, size),
		fmt.Sprintf("bytes %d-%d/%d", 10*mib, size-1, size),
	}, fake.ranges)
	assert.Equal(t, size, fake.received)
}

func TestTikTokPrivacyRejection(t *testing.T) {
	fake := newFakeTikTok(t)
	fake.initStatus = http.StatusForbidden
	fake.initBody = `{"error":{"code":"unaudited_client_can_only_post_to_private_accounts","message":"Please review our integration guidelines"}}`

	res, err := fake.uploader().Upload(context.Background(), &models.UploadRequest{VideoPath: sparseVideo(t, 1024), Title: "t"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.KindProtocol, res.Kind)
	assert.Contains(t, res.Error, "set the account to private")
	assert.False(t, res.Retryable)
	assert.Empty(t, fake.ranges)
}

func TestTikTokRateLimited(t *testing.T) {
	fake := newFakeTikTok(t)
	fake.initStatus = http.StatusTooManyRequests
	fake.initBody = `{"error":{"code":"rate_limit_exceeded","message":"slow down"}}`

	res, err := fake.uploader().Upload(context.Background(), &models.UploadRequest{VideoPath: sparseVideo(t, 1024), Title: "t"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "wait a few minutes and retry")
}

func TestTikTokServerErrorIsRetryable(t *testing.T) {
	fake := newFakeTikTok(t)
	fake.initStatus = http.StatusServiceUnavailable
	fake.initBody = `upstream unavailable`

	res, err := fake.uploader().Upload(context.Background(), &models.UploadRequest{VideoPath: sparseVideo(t, 1024), Title: "t"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.KindTransport, res.Kind)
	assert.True(t, res.Retryable)
}

func TestTikTokChunkRejected(t *testing.T) {
	fake := newFakeTikTok(t)
	fake.chunkCode = func(int) int { return http.StatusBadRequest }

	res, err := fake.uploader().Upload(context.Background(), &models.UploadRequest{VideoPath: sparseVideo(t, 1024), Title: "t"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "v_pub_1", res.PublishID)
	assert.Contains(t, res.Error, "HTTP 400")
	assert.Zero(t, fake.polls)
}

func TestTikTokStatusTimeout(t *testing.T) {
	fake := newFakeTikTok(t)
	fake.statuses = []string{"PROCESSING_UPLOAD"}
	u := fake.uploader()
	u.StatusTimeout = 30 * time.Millisecond

	res, err := u.Upload(context.Background(), &models.UploadRequest{VideoPath: sparseVideo(t, 1024), Title: "t"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StatusTimeout, res.Status)
	assert.GreaterOrEqual(t, fake.polls, 1)
}

func TestTikTokPublishFailed(t *testing.T) {
	fake := newFakeTikTok(t)
	fake.statuses = []string{StatusFailed}

	res, err := fake.uploader().Upload(context.Background(), &models.UploadRequest{VideoPath: sparseVideo(t, 1024), Title: "t"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.KindProtocol, res.Kind)
	assert.Contains(t, res.Error, "file_format_check_failed")
}

func TestTikTokMissingFileFailsFast(t *testing.T) {
	fake := newFakeTikTok(t)

	res, err := fake.uploader().Upload(context.Background(), &models.UploadRequest{VideoPath: filepath.Join(t.TempDir(), "nope.mp4")})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, models.KindValidation, models.KindOf(err))
	assert.Nil(t, fake.init)
}
