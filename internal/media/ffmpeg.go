package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/penguinblur/penguinblur-api/internal/vision"
)

// Compile-time check that FFmpegTranscoder implements Transcoder.
var _ Transcoder = (*FFmpegTranscoder)(nil)

// blurRadius maps intensity to the boxblur luma radius.
var blurRadius = map[BlurIntensity]int{
	BlurLight:  8,
	BlurMedium: 16,
	BlurHeavy:  32,
}

// FFmpegTranscoder implements Transcoder using the ffmpeg CLI. Each face
// region is cropped, box-blurred and overlaid back onto the frame.
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
	outputDir   string
}

// NewFFmpegTranscoder creates an FFmpegTranscoder writing results into
// outputDir. Empty binary paths default to "ffmpeg" and "ffprobe".
func NewFFmpegTranscoder(ffmpegPath, ffprobePath, outputDir string) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegTranscoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		outputDir:   outputDir,
	}
}

// Blur processes inputPath and returns the output path. Progress is parsed
// from ffmpeg's `-progress pipe:1` key=value stream against the duration
// reported by ffprobe.
func (t *FFmpegTranscoder) Blur(ctx context.Context, inputPath string, faces []vision.Face, intensity BlurIntensity, onProgress ProgressFunc) (string, error) {
	if !intensity.IsValid() {
		intensity = BlurMedium
	}

	durationSec, err := t.probeDuration(ctx, inputPath)
	if err != nil {
		return "", err
	}

	outputPath := filepath.Join(t.outputDir,
		fmt.Sprintf("blurred_%s_%s", intensity, filepath.Base(inputPath)))

	args := []string{
		"-y",
		"-i", inputPath,
		"-progress", "pipe:1",
		"-nostats",
	}
	if filter := buildBlurFilter(faces, blurRadius[intensity]); filter != "" {
		args = append(args, "-filter_complex", filter, "-map", "[vout]", "-map", "0:a?")
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "copy",
		outputPath,
	)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%w: stdout pipe: %v", ErrTranscode, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: start ffmpeg: %v", ErrTranscode, err)
	}

	// Drain the progress stream while ffmpeg runs. out_time_us reports
	// microseconds of output written so far.
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || onProgress == nil {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			us, err := strconv.ParseFloat(value, 64)
			if err != nil || durationSec <= 0 {
				continue
			}
			percent := int(us / 1e6 / durationSec * 100)
			if percent > 100 {
				percent = 100
			}
			onProgress(percent)
		case "progress":
			if value == "end" {
				onProgress(100)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v (stderr: %s)", ErrTranscode, err, stderr.String())
	}

	return outputPath, nil
}

// buildBlurFilter produces a filter_complex chain that crops each face
// region, blurs it and overlays it back. Returns "" when there is nothing
// to blur; the stream labeled [vout] carries the final video.
func buildBlurFilter(faces []vision.Face, radius int) string {
	if len(faces) == 0 {
		return ""
	}

	var sb strings.Builder
	prev := "0:v"
	for i, f := range faces {
		b := f.Box
		fmt.Fprintf(&sb, "[0:v]crop=%d:%d:%d:%d,boxblur=%d:2[b%d];",
			b.Width, b.Height, b.X, b.Y, radius, i)
		out := fmt.Sprintf("v%d", i)
		if i == len(faces)-1 {
			out = "vout"
		}
		fmt.Fprintf(&sb, "[%s][b%d]overlay=%d:%d[%s];", prev, i, b.X, b.Y, out)
		prev = out
	}

	return strings.TrimSuffix(sb.String(), ";")
}

// probeDuration returns the media duration in seconds using ffprobe.
func (t *FFmpegTranscoder) probeDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: ffprobe: %v (stderr: %s)", ErrTranscode, err, stderr.String())
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse duration %q: %v", ErrTranscode, stdout.String(), err)
	}

	return duration, nil
}
