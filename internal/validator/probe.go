package validator

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DefaultProbeTimeout bounds one ffprobe invocation.
const DefaultProbeTimeout = 10 * time.Second

// ErrNoVideoStream means the probe ran but found nothing playable.
var ErrNoVideoStream = errors.New("no video stream found")

// VideoInfo contains metadata about a video file.
type VideoInfo struct {
	Width     int
	Height    int
	Duration  float64 // seconds; 0 means unknown when Degraded
	Codec     string
	FrameRate float64
	Bitrate   int64
	Size      int64

	// Degraded is set when the probe tool was unavailable and the values
	// above are assumptions rather than measurements.
	Degraded bool
}

// Vertical reports whether the video is taller than it is wide.
func (i *VideoInfo) Vertical() bool {
	return i.Height > i.Width
}

// Prober reads container and stream metadata from a file.
type Prober interface {
	Probe(ctx context.Context, path string) (*VideoInfo, error)
}

// FFProbe runs the ffprobe binary through ffmpeg-go.
type FFProbe struct {
	Timeout time.Duration
}

// Probe runs ffprobe on path. ctx is honoured only before the process starts;
// the run itself is bounded by Timeout.
func (p *FFProbe) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	out, err := ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
	if err != nil {
		return nil, errors.Wrap(err, "ffprobe")
	}

	var size int64
	if st, err := os.Stat(path); err == nil {
		size = st.Size()
	}
	return parseProbe(out, size)
}

// parseProbe extracts VideoInfo from ffprobe's JSON output.
func parseProbe(out string, size int64) (*VideoInfo, error) {
	if !gjson.Valid(out) {
		return nil, errors.New("ffprobe returned malformed JSON")
	}
	stream := gjson.Get(out, `streams.#(codec_type=="video")`)
	if !stream.Exists() {
		return nil, ErrNoVideoStream
	}
	format := gjson.Get(out, "format")

	info := &VideoInfo{
		Width:     int(stream.Get("width").Int()),
		Height:    int(stream.Get("height").Int()),
		Duration:  format.Get("duration").Float(),
		Codec:     stream.Get("codec_name").String(),
		FrameRate: parseRate(stream.Get("r_frame_rate").String()),
		Bitrate:   format.Get("bit_rate").Int(),
		Size:      format.Get("size").Int(),
	}
	if info.Codec == "" {
		info.Codec = "unknown"
	}
	if info.Size == 0 {
		info.Size = size
	}
	return info, nil
}

// parseRate converts ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// fallbackInfo is used when ffprobe cannot run at all.
func fallbackInfo(size int64) *VideoInfo {
	return &VideoInfo{
		Width:     RecommendedWidth,
		Height:    RecommendedHeight,
		Duration:  0,
		Codec:     "unknown",
		FrameRate: 30,
		Size:      size,
		Degraded:  true,
	}
}
