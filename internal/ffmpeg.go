package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Transcoder decodes captured streaming-audio URLs into Whisper-ready WAV
// files using FFmpeg.
type Transcoder struct {
	cmdRunner CommandRunner
	tempDir   string
	verbose   bool
}

// NewTranscoder creates a new audio transcoder
func NewTranscoder(cmdRunner CommandRunner, tempDir string, verbose bool) *Transcoder {
	return &Transcoder{
		cmdRunner: cmdRunner,
		tempDir:   tempDir,
		verbose:   verbose,
	}
}

// stderrTailLimit bounds captured subprocess output in error messages so a
// verbose FFmpeg failure cannot blow up the logs.
const stderrTailLimit = 2048

// Extract downloads and decodes the audio at srcURL into a mono 16kHz PCM
// WAV file. Cookies travel as request headers; proxy settings travel as
// subprocess environment variables so FFmpeg's own HTTP stack honors them.
func (t *Transcoder) Extract(ctx context.Context, srcURL, cookieHeader string, proxyEnv map[string]string, videoID string) (string, error) {
	if err := EnsureDirs(t.tempDir); err != nil {
		return "", fmt.Errorf("creating temp directory: %w", err)
	}
	outPath := filepath.Join(t.tempDir, videoID+".wav")

	args := []string{"-v", "error", "-y"}
	if cookieHeader != "" {
		args = append(args, "-headers", "Cookie: "+cookieHeader+"\r\n")
	}
	args = append(args,
		"-i", srcURL,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outPath,
	)

	output, err := t.cmdRunner.RunEnv(ctx, proxyEnv, "ffmpeg", args...)
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, Tail(string(output), stderrTailLimit))
	}
	return outPath, nil
}

// Duration returns the audio file duration in seconds
func (t *Transcoder) Duration(ctx context.Context, audioFile string) (float64, error) {
	output, err := t.cmdRunner.Run(ctx, "ffprobe",
		"-i", audioFile,
		"-show_entries", "format=duration",
		"-v", "quiet",
		"-of", "csv=p=0")

	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, Tail(string(output), stderrTailLimit))
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration: %w", err)
	}

	return duration, nil
}
