package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrFramesClosed is returned by FrameAt after Close.
var ErrFramesClosed = errors.New("media: frame source closed")

// FrameSource provides the video frame visible at a playback position.
type FrameSource interface {
	// FrameAt returns the most recent decoded frame at or before t without
	// blocking on decode. Nil means no frame is ready yet.
	FrameAt(t time.Duration) (image.Image, error)
	Close() error
}

// VideoInfo is what ffprobe reports about a media file.
type VideoInfo struct {
	Probed   bool
	HasVideo bool
	HasAudio bool
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration
	Format   string
}

// ProbeVideo runs ffprobe on path.
func ProbeVideo(ctx context.Context, bin, path string) (VideoInfo, error) {
	args := []string{"-v", "error", "-show_format", "-show_streams", "-of", "json", path}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe: %v: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (VideoInfo, error) {
	var ff struct {
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType    string `json:"codec_type"`
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			AvgFrameRate string `json:"avg_frame_rate"`
			Disposition  struct {
				AttachedPic int `json:"attached_pic"`
			} `json:"disposition"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &ff); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe: parse output: %w", err)
	}

	info := VideoInfo{Probed: true, Format: ff.Format.FormatName}
	if secs, err := strconv.ParseFloat(strings.TrimSpace(ff.Format.Duration), 64); err == nil {
		info.Duration = time.Duration(secs * float64(time.Second))
	}
	for _, s := range ff.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			// Cover art embedded in audio files is not a video track.
			if info.HasVideo || s.Disposition.AttachedPic == 1 || s.Width == 0 {
				continue
			}
			info.HasVideo = true
			info.Width, info.Height = s.Width, s.Height
			info.FPS = parseRate(s.AvgFrameRate)
		}
	}
	if info.FPS <= 0 {
		info.FPS = 25
	}
	return info, nil
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// FFmpegFrames decodes RGBA frames through an ffmpeg pipe. Decoding runs
// ahead of the playhead by at most one frame; seeking far from the decode
// position restarts ffmpeg at the new position.
type FFmpegFrames struct {
	bin    string
	path   string
	width  int
	height int
	step   time.Duration
	log    *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	gen      uint64
	cancel   context.CancelFunc
	start    time.Duration
	next     time.Duration
	target   time.Duration
	latest   *image.RGBA
	latestAt time.Duration
	closed   bool
}

// NewFFmpegFrames prepares a frame source for path scaled to maxWidth.
// No process is started until the first FrameAt.
func NewFFmpegFrames(bin, path string, info VideoInfo, maxWidth int, log *slog.Logger) *FFmpegFrames {
	w := min(info.Width, maxWidth)
	h := int(math.Round(float64(w) * float64(info.Height) / float64(info.Width)))
	fps := info.FPS
	if fps <= 0 {
		fps = 25
	}
	if log == nil {
		log = slog.Default()
	}
	f := &FFmpegFrames{
		bin:    bin,
		path:   path,
		width:  w,
		height: max(h, 1),
		step:   time.Duration(float64(time.Second) / fps),
		log:    log,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *FFmpegFrames) FrameAt(t time.Duration) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFramesClosed
	}

	f.target = t
	backwards := f.latest != nil && t+f.step < f.latestAt
	if f.cancel == nil || t < f.start || backwards || t > f.next+2*time.Second {
		if err := f.restartLocked(t); err != nil {
			return nil, err
		}
	}
	f.cond.Broadcast()

	if f.latest == nil {
		return nil, nil
	}
	return f.latest, nil
}

func (f *FFmpegFrames) restartLocked(at time.Duration) error {
	f.stopLocked()
	f.gen++
	f.start, f.next = at, at
	f.latest = nil

	ctx, cancel := context.WithCancel(context.Background())
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", at.Seconds()),
		"-i", f.path,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", f.width, f.height),
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg frames: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg frames: %w", err)
	}
	f.cancel = cancel
	go f.decode(f.gen, at, stdout, cmd)
	return nil
}

func (f *FFmpegFrames) stopLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.gen++
	f.cond.Broadcast()
}

// decode reads frames for generation gen, publishing each once the playhead
// has reached it.
func (f *FFmpegFrames) decode(gen uint64, start time.Duration, stdout io.Reader, cmd *exec.Cmd) {
	defer cmd.Wait()

	for i := 0; ; i++ {
		img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
		if _, err := io.ReadFull(stdout, img.Pix); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				f.log.Debug("frame decode stopped", "path", f.path, "err", err)
			}
			return
		}
		pts := start + time.Duration(i)*f.step

		f.mu.Lock()
		for f.gen == gen && pts > f.target+f.step {
			f.cond.Wait()
		}
		if f.gen != gen {
			f.mu.Unlock()
			return
		}
		f.latest, f.latestAt = img, pts
		f.next = pts + f.step
		f.mu.Unlock()
	}
}

// Close stops the decoder process.
func (f *FFmpegFrames) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.stopLocked()
	f.latest = nil
	return nil
}
