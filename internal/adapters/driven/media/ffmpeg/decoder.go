// Package ffmpeg implements driven.MediaDecoder by running the ffprobe and
// ffmpeg binaries. Frames and audio clips are streamed from stdout, so no
// temporary files are written.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure Decoder implements the interface.
var _ driven.MediaDecoder = (*Decoder)(nil)

// Default binary names, resolved through PATH.
const (
	DefaultFFmpeg  = "ffmpeg"
	DefaultFFprobe = "ffprobe"
)

// maxStderr bounds how much stderr is kept for error messages.
const maxStderr = 2048

// runFunc runs a binary and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Decoder decodes media with ffmpeg.
type Decoder struct {
	ffmpeg  string
	ffprobe string
	run     runFunc
}

// NewDecoder creates a decoder. Empty paths fall back to the binaries on PATH.
func NewDecoder(ffmpegPath, ffprobePath string) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = DefaultFFmpeg
	}
	if ffprobePath == "" {
		ffprobePath = DefaultFFprobe
	}
	return &Decoder{ffmpeg: ffmpegPath, ffprobe: ffprobePath, run: runCommand}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
		Disposition  struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

// Probe reads duration, frame rate and stream layout.
func (d *Decoder) Probe(ctx context.Context, path string) (*domain.MediaInfo, error) {
	out, err := d.run(ctx, d.ffprobe,
		"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return nil, err
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (*domain.MediaInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %w", domain.ErrFileCorrupted, err)
	}

	info := &domain.MediaInfo{DurationMs: secondsToMs(probe.Format.Duration)}
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			// Embedded cover art is not a video track.
			if s.Disposition.AttachedPic == 1 || info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.FPS = parseRate(s.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = parseRate(s.RFrameRate)
			}
			if n, err := strconv.ParseInt(s.NbFrames, 10, 64); err == nil {
				info.FrameCount = n
			}
			if info.DurationMs == 0 {
				info.DurationMs = secondsToMs(s.Duration)
			}
		case "audio":
			info.HasAudio = true
			if info.DurationMs == 0 {
				info.DurationMs = secondsToMs(s.Duration)
			}
		}
	}
	if !info.HasVideo && !info.HasAudio {
		return nil, fmt.Errorf("%w: no decodable streams", domain.ErrFileCorrupted)
	}
	if info.FrameCount == 0 && info.FPS > 0 && info.DurationMs > 0 {
		info.FrameCount = int64(math.Round(float64(info.DurationMs) * info.FPS / 1000))
	}
	return info, nil
}

// SceneScores returns the scene-change score of every video frame.
func (d *Decoder) SceneScores(ctx context.Context, path string) ([]domain.FrameScore, error) {
	out, err := d.run(ctx, d.ffmpeg, "-hide_banner", "-nostats", "-i", path, "-an", "-sn",
		"-vf", "select='gte(scene,0)',metadata=print:file=-", "-f", "null", "-")
	if err != nil {
		return nil, err
	}
	scores, err := parseSceneScores(out)
	if err != nil {
		return nil, err
	}
	logger.Debug("Scene scores for %s: %d frames", path, len(scores))
	return scores, nil
}

// parseSceneScores reads metadata=print output:
//
//	frame:12   pts:12288  pts_time:0.4
//	lavfi.scene_score=0.012345
func parseSceneScores(out []byte) ([]domain.FrameScore, error) {
	var scores []domain.FrameScore
	frame := int64(-1)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "frame:"):
			field := strings.Fields(strings.TrimPrefix(line, "frame:"))
			if len(field) == 0 {
				continue
			}
			n, err := strconv.ParseInt(field[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: scene output frame %q", domain.ErrFileCorrupted, line)
			}
			frame = n
		case strings.HasPrefix(line, "lavfi.scene_score="):
			if frame < 0 {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimPrefix(line, "lavfi.scene_score="), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: scene output score %q", domain.ErrFileCorrupted, line)
			}
			scores = append(scores, domain.FrameScore{FrameIndex: frame, Score: v})
			frame = -1
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read scene output: %w", err)
	}
	return scores, nil
}

// ExtractFrame returns the frame shown at atMs as PNG.
func (d *Decoder) ExtractFrame(ctx context.Context, path string, atMs int64) ([]byte, error) {
	out, err := d.run(ctx, d.ffmpeg, "-hide_banner", "-loglevel", "error",
		"-ss", msToSeconds(atMs), "-i", path,
		"-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no frame at %dms", domain.ErrFileCorrupted, atMs)
	}
	return out, nil
}

// ExtractAudio returns [startMs, endMs) as 16kHz mono WAV.
func (d *Decoder) ExtractAudio(ctx context.Context, path string, startMs, endMs int64) ([]byte, error) {
	if endMs <= startMs {
		return nil, fmt.Errorf("%w: empty audio range [%d, %d)", domain.ErrInvalidInput, startMs, endMs)
	}
	out, err := d.run(ctx, d.ffmpeg, "-hide_banner", "-loglevel", "error",
		"-ss", msToSeconds(startMs), "-t", msToSeconds(endMs-startMs), "-i", path,
		"-vn", "-ac", "1", "-ar", "16000", "-f", "wav", "-")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no audio in [%d, %d)", domain.ErrFileCorrupted, startMs, endMs)
	}
	return out, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%s not installed: %w", name, err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, fmt.Errorf("%w: %s exited %d: %s",
			domain.ErrFileCorrupted, name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	}
	return nil, fmt.Errorf("run %s: %w", name, err)
}

// limitedBuffer keeps the last max bytes written.
type limitedBuffer struct {
	max int
	buf []byte
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}

func parseRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		v, _ := strconv.ParseFloat(rate, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	dd, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || dd == 0 {
		return 0
	}
	return n / dd
}

func secondsToMs(s string) int64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(math.Round(v * 1000))
}

func msToSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}
