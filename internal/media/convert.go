package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrFFmpegNotFound    = errors.New("ffmpeg was not found in PATH; install it and make sure it is on PATH")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

type Kind int

const (
	KindUnsupported Kind = iota
	KindAudio
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unsupported"
	}
}

var (
	audioExtensions = []string{".mp3", ".wav", ".m4a", ".flac"}
	videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}
)

// SupportedExtensions lists every accepted input extension, audio first.
func SupportedExtensions() []string {
	out := make([]string, 0, len(audioExtensions)+len(videoExtensions))
	out = append(out, audioExtensions...)
	return append(out, videoExtensions...)
}

func Classify(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range audioExtensions {
		if ext == candidate {
			return KindAudio
		}
	}
	for _, candidate := range videoExtensions {
		if ext == candidate {
			return KindVideo
		}
	}
	return KindUnsupported
}

// Prepared is a media file ready for the engine. Cleanup removes any
// intermediate file created for it and is safe to call more than once.
type Prepared struct {
	Path      string
	Kind      Kind
	Converted bool
	Cleanup   func()
}

type Converter struct {
	// KeepConverted writes video conversions next to the source as <name>.wav
	// and leaves them in place. Other conversions always go to a temp file.
	KeepConverted bool
	TempDir       string
	Logger        *zap.Logger

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args []string) ([]byte, error)
}

// Prepare turns path into a 16 kHz mono WAV the engine can read. WAV input
// is used as-is.
func (c *Converter) Prepare(ctx context.Context, path string) (Prepared, error) {
	path = filepath.Clean(path)
	kind := Classify(path)
	noop := func() {}

	if kind == KindUnsupported {
		c.log().Warn("unsupported file format", zap.String("path", path))
		return Prepared{}, fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedFormat, filepath.Ext(path), strings.Join(SupportedExtensions(), " "))
	}

	if kind == KindAudio && strings.EqualFold(filepath.Ext(path), ".wav") {
		c.log().Debug("wav input needs no conversion", zap.String("path", path))
		return Prepared{Path: path, Kind: kind, Cleanup: noop}, nil
	}

	ffmpeg, err := c.lookPathFn()("ffmpeg")
	if err != nil {
		return Prepared{}, ErrFFmpegNotFound
	}

	target, temporary, err := c.targetPath(path, kind)
	if err != nil {
		return Prepared{}, err
	}

	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y", "-i", path, "-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le", target}
	c.log().Info("converting media to wav", zap.String("source", path), zap.String("target", target), zap.Stringer("kind", kind))

	if out, err := c.runFn()(ctx, ffmpeg, args); err != nil {
		_ = os.Remove(target)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Prepared{}, ctxErr
		}
		return Prepared{}, fmt.Errorf("convert %s with ffmpeg: %w (%s)", path, err, tail(out, 512))
	}

	cleanup := noop
	if temporary {
		cleanup = removeOnce(target, c.log())
	}

	c.log().Info("conversion finished", zap.String("target", target))
	return Prepared{Path: target, Kind: kind, Converted: true, Cleanup: cleanup}, nil
}

func (c *Converter) targetPath(source string, kind Kind) (string, bool, error) {
	if c.KeepConverted && kind == KindVideo {
		return strings.TrimSuffix(source, filepath.Ext(source)) + ".wav", false, nil
	}

	f, err := os.CreateTemp(c.TempDir, "wipsher-*.wav")
	if err != nil {
		return "", false, fmt.Errorf("create conversion target: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", false, fmt.Errorf("close conversion target: %w", err)
	}
	return name, true, nil
}

func (c *Converter) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Converter) lookPathFn() func(string) (string, error) {
	if c.lookPath != nil {
		return c.lookPath
	}
	return exec.LookPath
}

func (c *Converter) runFn() func(ctx context.Context, name string, args []string) ([]byte, error) {
	if c.run != nil {
		return c.run
	}
	return runCommand
}

func runCommand(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

func removeOnce(path string, logger *zap.Logger) func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove converted file", zap.String("path", path), zap.Error(err))
		}
	}
}

func tail(out []byte, limit int) string {
	text := strings.TrimSpace(string(out))
	if len(text) <= limit {
		return text
	}
	return "..." + text[len(text)-limit:]
}
