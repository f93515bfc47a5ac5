package converter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	conf "github.com/akimov/audiopipe/internal/config"
	"github.com/google/uuid"
)

// CommandRunner abstracts process execution so tests can fake ffmpeg.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type ExecCommandRunner struct{}

func (ExecCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, firstKB(out))
	}
	return nil
}

func firstKB(b []byte) []byte {
	if len(b) > 1024 {
		return b[:1024]
	}
	return b
}

// Extractor turns a video payload into an mp3 audio track via ffmpeg.
type Extractor struct {
	ffmpegPath string
	bitrate    string
	tempDir    string
	runner     CommandRunner
}

func NewExtractor(cfg *conf.Worker) *Extractor {
	e := &Extractor{
		ffmpegPath: cfg.FFmpegPath,
		bitrate:    cfg.Bitrate,
		tempDir:    cfg.TempDir,
		runner:     ExecCommandRunner{},
	}
	if e.ffmpegPath == "" {
		e.ffmpegPath = "ffmpeg"
	}
	if e.bitrate == "" {
		e.bitrate = "192k"
	}
	if e.tempDir == "" {
		e.tempDir = os.TempDir()
	}
	return e
}

// WithRunner swaps the process runner, for tests.
func (e *Extractor) WithRunner(r CommandRunner) *Extractor {
	e.runner = r
	return e
}

// Extract materializes the payload to a scoped temp file, runs the
// extraction and returns the encoded audio bytes. Temp files are removed
// on every exit path so sustained failures cannot fill the disk.
func (e *Extractor) Extract(ctx context.Context, video []byte) ([]byte, error) {
	id := uuid.NewString()
	inputPath := filepath.Join(e.tempDir, id+"-input")
	outputPath := filepath.Join(e.tempDir, id+"-output.mp3")

	if err := os.WriteFile(inputPath, video, 0o600); err != nil {
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	defer os.Remove(inputPath)
	defer os.Remove(outputPath)

	args := []string{
		"-i", inputPath,
		"-vn", // no video
		"-acodec", "libmp3lame",
		"-ab", e.bitrate,
		"-y", // overwrite output file if it exists
		outputPath,
	}
	if err := e.runner.Run(ctx, e.ffmpegPath, args...); err != nil {
		return nil, fmt.Errorf("ffmpeg audio extraction failed: %w", err)
	}

	audio, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read extracted audio: %w", err)
	}
	return audio, nil
}

// VerifyInstalled checks that ffmpeg is available before the worker
// starts consuming.
func (e *Extractor) VerifyInstalled(ctx context.Context) error {
	if err := e.runner.Run(ctx, e.ffmpegPath, "-version"); err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	return nil
}
