package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want Kind
	}{
		{path: "talk.mp3", want: KindAudio},
		{path: "talk.WAV", want: KindAudio},
		{path: "/tmp/a/b.m4a", want: KindAudio},
		{path: "voice.flac", want: KindAudio},
		{path: "lesson.mp4", want: KindVideo},
		{path: "lesson.AVI", want: KindVideo},
		{path: "clip.mov", want: KindVideo},
		{path: "film.mkv", want: KindVideo},
		{path: "notes.txt", want: KindUnsupported},
		{path: "noext", want: KindUnsupported},
	}

	for _, tt := range tests {
		require.Equalf(t, tt.want, Classify(tt.path), "classify %s", tt.path)
	}
}

func TestPrepareWAVPassesThroughWithoutFFmpeg(t *testing.T) {
	t.Parallel()

	c := &Converter{
		lookPath: func(string) (string, error) { return "", errors.New("not found") },
	}

	prepared, err := c.Prepare(context.Background(), "/data/meeting.wav")
	require.NoError(t, err)
	require.Equal(t, "/data/meeting.wav", prepared.Path)
	require.False(t, prepared.Converted)
	prepared.Cleanup()
}

func TestPrepareRequiresFFmpegForConversion(t *testing.T) {
	t.Parallel()

	c := &Converter{
		lookPath: func(string) (string, error) { return "", errors.New("not found") },
	}

	_, err := c.Prepare(context.Background(), "/data/meeting.mp4")
	require.ErrorIs(t, err, ErrFFmpegNotFound)
}

func TestPrepareRejectsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := (&Converter{}).Prepare(context.Background(), "/data/readme.txt")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	require.Contains(t, err.Error(), ".mkv")
}

func TestPrepareKeepsVideoConversionNextToSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	source := filepath.Join(dir, "lecture.mkv")
	require.NoError(t, os.WriteFile(source, []byte("video"), 0o644))

	var gotArgs []string
	c := &Converter{
		KeepConverted: true,
		lookPath:      func(string) (string, error) { return "/usr/bin/ffmpeg", nil },
		run: func(_ context.Context, name string, args []string) ([]byte, error) {
			require.Equal(t, "/usr/bin/ffmpeg", name)
			gotArgs = args
			return nil, os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o644)
		},
	}

	prepared, err := c.Prepare(context.Background(), source)
	require.NoError(t, err)
	require.True(t, prepared.Converted)
	require.Equal(t, KindVideo, prepared.Kind)
	require.Equal(t, filepath.Join(dir, "lecture.wav"), prepared.Path)
	require.Contains(t, gotArgs, "-y")
	require.Contains(t, gotArgs, source)
	require.Contains(t, gotArgs, "16000")

	prepared.Cleanup()
	_, err = os.Stat(prepared.Path)
	require.NoError(t, err, "kept conversions survive cleanup")
}

func TestPrepareAudioConversionIsTemporary(t *testing.T) {
	t.Parallel()

	c := &Converter{
		KeepConverted: true,
		TempDir:       t.TempDir(),
		lookPath:      func(string) (string, error) { return "ffmpeg", nil },
		run: func(_ context.Context, _ string, args []string) ([]byte, error) {
			return nil, os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o644)
		},
	}

	prepared, err := c.Prepare(context.Background(), "/data/podcast.m4a")
	require.NoError(t, err)
	require.True(t, prepared.Converted)
	require.Equal(t, c.TempDir, filepath.Dir(prepared.Path))

	prepared.Cleanup()
	prepared.Cleanup()
	_, err = os.Stat(prepared.Path)
	require.True(t, os.IsNotExist(err))
}

func TestPrepareReportsFFmpegFailure(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	c := &Converter{
		TempDir:  tempDir,
		lookPath: func(string) (string, error) { return "ffmpeg", nil },
		run: func(context.Context, string, []string) ([]byte, error) {
			return []byte("Invalid data found when processing input"), errors.New("exit status 1")
		},
	}

	_, err := c.Prepare(context.Background(), "/data/broken.mov")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid data found")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	require.Empty(t, entries, "failed conversions leave no temp file")
}

func TestSupportedExtensions(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{".mp3", ".wav", ".m4a", ".flac", ".mp4", ".avi", ".mov", ".mkv"}, SupportedExtensions())
}
