package converter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	conf "github.com/akimov/audiopipe/internal/config"
)

// fakeRunner pretends to be ffmpeg: it writes canned bytes to the output
// path named in the args, or fails.
type fakeRunner struct {
	output []byte
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return f.err
	}
	outputPath := args[len(args)-1]
	return os.WriteFile(outputPath, f.output, 0o600)
}

func newExtractor(t *testing.T, r CommandRunner) *Extractor {
	t.Helper()
	return NewExtractor(&conf.Worker{TempDir: t.TempDir(), Bitrate: "192k"}).WithRunner(r)
}

func TestExtract(t *testing.T) {
	runner := &fakeRunner{output: []byte("MP3_BYTES")}
	e := newExtractor(t, runner)

	audio, err := e.Extract(context.Background(), []byte("VIDEO_BYTES"))
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}
	if string(audio) != "MP3_BYTES" {
		t.Errorf("Extract() = %q, want MP3_BYTES", audio)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.calls))
	}
	argv := strings.Join(runner.calls[0], " ")
	for _, want := range []string{"-vn", "libmp3lame", "-ab 192k"} {
		if !strings.Contains(argv, want) {
			t.Errorf("ffmpeg argv missing %q: %s", want, argv)
		}
	}
}

func TestExtractCleansUpTempFiles(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"success", &fakeRunner{output: []byte("ok")}},
		{"transform failure", &fakeRunner{err: errors.New("decode error")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			e := NewExtractor(&conf.Worker{TempDir: dir}).WithRunner(tt.runner)

			_, _ = e.Extract(context.Background(), []byte("VIDEO_BYTES"))

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			for _, entry := range entries {
				t.Errorf("temp file left behind: %s", filepath.Join(dir, entry.Name()))
			}
		})
	}
}

func TestExtractTransformFailure(t *testing.T) {
	e := newExtractor(t, &fakeRunner{err: errors.New("invalid data found")})

	_, err := e.Extract(context.Background(), []byte("NOT_A_VIDEO"))
	if err == nil {
		t.Fatal("Extract() expected error for failing transform")
	}
	if !strings.Contains(err.Error(), "ffmpeg audio extraction failed") {
		t.Errorf("Extract() error = %v, want wrapped extraction failure", err)
	}
}
