package prober

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

var tracer = otel.Tracer("prober")

const (
	thumbWidth    = 640
	thumbHeight   = 360
	startProgress = 10
)

// Failure reasons carried by ProbeError. These are the only values that
// leave the process; tool output stays in Detail and the logs.
const (
	ReasonInvalidMedia  = "invalid_media"
	ReasonNoVideoStream = "no_video_stream"
	ReasonToolFailed    = "tool_failed"
	ReasonTimedOut      = "timed_out"
)

// waitDelay bounds how long Wait lingers on pipes held open by a killed
// tool's children.
const waitDelay = time.Second

// ProbeError reports that the external tool could not make sense of a file.
type ProbeError struct {
	Stage  string
	Reason string
	Detail string
	Err    error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("probe %s failed: %s", e.Stage, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProbeError) Unwrap() error { return e.Err }

func (e *ProbeError) FailureReason() string { return e.Reason }

type FFmpegProber struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	logger  logger.Logger
}

func NewFFmpegProber(ffmpegPath, ffprobePath string, timeout time.Duration, log logger.Logger) *FFmpegProber {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegProber{ffmpeg: ffmpegPath, ffprobe: ffprobePath, timeout: timeout, logger: log}
}

var _ service.Prober = (*FFmpegProber)(nil)

// Probe reads the container duration and grabs one frame from the middle of
// the stream. The whole call is bounded by the configured timeout.
func (p *FFmpegProber) Probe(ctx context.Context, absPath string, progress chan<- int) (*service.ProbeResult, error) {
	ctx, span := tracer.Start(ctx, "FFmpegProber.Probe")
	defer span.End()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	notify(ctx, progress, startProgress)

	duration, err := p.duration(ctx, absPath)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	thumb, err := p.frame(ctx, absPath, duration, progress)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	p.logger.Debug("Probe finished",
		zap.String("path", absPath),
		zap.Float64("duration_seconds", duration),
		zap.Int("thumbnail_bytes", len(thumb)),
	)
	return &service.ProbeResult{DurationSeconds: duration, Thumbnail: thumb}, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

func (p *FFmpegProber) duration(ctx context.Context, absPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		absPath,
	)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, toolError(ctx, "metadata", stderr.String(), err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, &ProbeError{Stage: "metadata", Reason: ReasonInvalidMedia, Detail: "unreadable ffprobe output", Err: err}
	}
	hasVideo := false
	for _, s := range parsed.Streams {
		if s.CodecType == "video" {
			hasVideo = true
			break
		}
	}
	if !hasVideo {
		return 0, &ProbeError{Stage: "metadata", Reason: ReasonNoVideoStream}
	}
	d, _ := strconv.ParseFloat(parsed.Format.Duration, 64)
	return d, nil
}

func (p *FFmpegProber) frame(ctx context.Context, absPath string, duration float64, progress chan<- int) ([]byte, error) {
	out := filepath.Join(os.TempDir(), "pulse-thumb-"+uuid.NewString()+".png")
	defer os.Remove(out)

	seek := duration / 2
	cmd := exec.CommandContext(ctx, p.ffmpeg,
		"-hide_banner", "-nostats", "-loglevel", "error",
		"-ss", strconv.FormatFloat(seek, 'f', 3, 64),
		"-i", absPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", thumbWidth, thumbHeight),
		"-progress", "pipe:1",
		"-y", out,
	)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProbeError{Stage: "thumbnail", Reason: ReasonToolFailed, Detail: "cannot attach to ffmpeg", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &ProbeError{Stage: "thumbnail", Reason: ReasonToolFailed, Detail: "cannot start ffmpeg", Err: err}
	}

	readProgress(ctx, stdout, duration, progress)

	if err := cmd.Wait(); err != nil {
		return nil, toolError(ctx, "thumbnail", stderr.String(), err)
	}

	data, err := os.ReadFile(out)
	if err != nil || len(data) == 0 {
		return nil, &ProbeError{Stage: "thumbnail", Reason: ReasonInvalidMedia, Detail: "no frame extracted", Err: err}
	}
	return data, nil
}

// readProgress consumes ffmpeg's key=value progress stream until EOF.
func readProgress(ctx context.Context, r io.Reader, duration float64, progress chan<- int) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if pct, ok := parseProgressLine(scanner.Text(), duration); ok {
			notify(ctx, progress, pct)
		}
	}
}

// parseProgressLine turns one line of `-progress` output into an interim
// percentage. out_time_us is measured against the full duration; the end
// marker maps to the interim ceiling.
func parseProgressLine(line string, duration float64) (int, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports both keys in microseconds.
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 || duration <= 0 {
			return 0, false
		}
		pct := int(float64(us) / 1e6 / duration * 100)
		return video.ClampInterimProgress(max(pct, startProgress)), true
	case "progress":
		if value == "end" {
			return video.MaxInterimProgress, true
		}
	}
	return 0, false
}

// notify never blocks the tool on a slow consumer.
func notify(ctx context.Context, progress chan<- int, pct int) {
	if progress == nil {
		return
	}
	select {
	case progress <- pct:
	case <-ctx.Done():
	default:
	}
}

// toolError classifies a failed tool run. A non-zero exit means the tool
// rejected the input; anything else means it could not run at all.
func toolError(ctx context.Context, stage, stderr string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProbeError{Stage: stage, Reason: ReasonTimedOut, Err: ctx.Err()}
	}
	detail := strings.TrimSpace(stderr)
	if i := strings.IndexByte(detail, '\n'); i > 0 {
		detail = detail[:i]
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ProbeError{Stage: stage, Reason: ReasonInvalidMedia, Detail: detail, Err: err}
	}
	return &ProbeError{Stage: stage, Reason: ReasonToolFailed, Detail: detail, Err: err}
}
