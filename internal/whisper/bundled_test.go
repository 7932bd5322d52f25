package whisper

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wipsher/wipsher/internal/platform"
)

func TestResolveBundledEnginePathFindsLibexecSibling(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	engineDir := filepath.Join(root, "libexec", "whisper")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	require.NoError(t, os.MkdirAll(engineDir, 0o755))

	self := filepath.Join(binDir, "wipsher")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	enginePath := filepath.Join(engineDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self, nil)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestResolveBundledEnginePathFindsPackagingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	self := filepath.Join(root, "wipsher")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	targetDir := filepath.Join(root, "packaging", "whisper", platform.CurrentRuntime().Target())
	require.NoError(t, os.MkdirAll(targetDir, 0o755))
	enginePath := filepath.Join(targetDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self, nil)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestResolveBundledEnginePathFallsBackToPATH(t *testing.T) {
	t.Parallel()

	self := filepath.Join(t.TempDir(), "bin", "wipsher")

	resolved, err := ResolveBundledEnginePath(self, func(name string) (string, error) {
		require.Equal(t, engineBinaryName(), name)
		return "/usr/local/bin/whisper-cli", nil
	})
	require.NoError(t, err)
	require.Equal(t, "/usr/local/bin/whisper-cli", resolved)
}

func TestResolveBundledEnginePathMissing(t *testing.T) {
	t.Parallel()

	self := filepath.Join(t.TempDir(), "bin", "wipsher")
	_, err := ResolveBundledEnginePath(self, func(string) (string, error) { return "", os.ErrNotExist })
	require.Error(t, err)
	require.Contains(t, err.Error(), "whisper engine not found")
	require.Contains(t, err.Error(), enginePathEnv)
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	args := buildArgs(TranscriptionRequest{
		AudioPath:   "/tmp/a.wav",
		ModelPath:   "/models/ggml-small.bin",
		Language:    "it",
		BeamSize:    5,
		BestOf:      5,
		Temperature: 0,
		Threads:     4,
		ExtraArgs:   []string{"--max-len", "40"},
	}, "/tmp/out")

	joined := strings.Join(args, " ")
	require.Contains(t, joined, "-m /models/ggml-small.bin -f /tmp/a.wav -nt -otxt -of /tmp/out -pp")
	require.Contains(t, joined, "-bs 5 -bo 5 -tp 0")
	require.Contains(t, joined, "-l it")
	require.Contains(t, joined, "-t 4")
	require.Contains(t, joined, "-ng")
	require.Equal(t, []string{"--max-len", "40"}, args[len(args)-2:])
}

func TestBuildArgsAutoLanguageOnGPU(t *testing.T) {
	t.Parallel()

	args := buildArgs(TranscriptionRequest{AudioPath: "a.wav", ModelPath: "m.bin", Language: "auto", UseGPU: true, Temperature: 0.2}, "out")
	require.NotContains(t, args, "-l")
	require.NotContains(t, args, "-ng")
	require.NotContains(t, args, "-t")
	require.Contains(t, strings.Join(args, " "), "-tp 0.2")
}

func TestParseProgress(t *testing.T) {
	t.Parallel()

	percent, ok := parseProgress("whisper_print_progress_callback: progress =  45%")
	require.True(t, ok)
	require.Equal(t, 45, percent)

	_, ok = parseProgress("whisper_init_from_file_with_params_no_state: loading model")
	require.False(t, ok)

	_, ok = parseProgress("progress = 450%")
	require.False(t, ok)
}

func TestLineTailKeepsLastLines(t *testing.T) {
	t.Parallel()

	tail := newLineTail(2)
	tail.Add("one")
	tail.Add("  ")
	tail.Add("two")
	tail.Add("three")
	require.Equal(t, "two\nthree", tail.String())
}

func TestSplitExtraArgs(t *testing.T) {
	t.Parallel()

	args, err := SplitExtraArgs(`--prompt "ciao a tutti" -mc 0`)
	require.NoError(t, err)
	require.Equal(t, []string{"--prompt", "ciao a tutti", "-mc", "0"}, args)

	args, err = SplitExtraArgs("")
	require.NoError(t, err)
	require.Empty(t, args)
}

func TestBundledEngineTranscribeWithFakeEngine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine")
	}

	engine := writeFakeEngine(t, `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then out="$2"; fi
  shift
done
echo "whisper_init: loading model" >&2
printf 'whisper_print_progress_callback: progress =  30%%\r' >&2
echo "whisper_print_progress_callback: progress =  80%" >&2
printf '  Buongiorno a tutti.\n' > "$out.txt"
`)

	var reported []int
	b := &BundledEngine{Executable: engine}
	transcript, err := b.Transcribe(context.Background(), TranscriptionRequest{
		AudioPath: "/tmp/a.wav",
		ModelPath: "/tmp/m.bin",
		Progress:  func(p int) { reported = append(reported, p) },
	})
	require.NoError(t, err)
	require.Equal(t, "Buongiorno a tutti.", transcript)
	require.Equal(t, []int{30, 80}, reported)
}

func TestBundledEngineReportsStderrOnFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine")
	}

	engine := writeFakeEngine(t, `
echo "error: failed to open 'a.wav' as WAV file" >&2
exit 3
`)

	b := &BundledEngine{Executable: engine}
	_, err := b.Transcribe(context.Background(), TranscriptionRequest{AudioPath: "a.wav", ModelPath: "m.bin"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open")
}

func TestBundledEngineHonorsCancellation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine")
	}

	engine := writeFakeEngine(t, "exec sleep 30\n")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	b := &BundledEngine{Executable: engine}
	started := time.Now()
	_, err := b.Transcribe(ctx, TranscriptionRequest{AudioPath: "a.wav", ModelPath: "m.bin"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(started), 10*time.Second)
}

func TestBundledEngineValidatesRequest(t *testing.T) {
	t.Parallel()

	b := &BundledEngine{Executable: "/nonexistent"}
	_, err := b.Transcribe(context.Background(), TranscriptionRequest{ModelPath: "m.bin"})
	require.Error(t, err)
	_, err = b.Transcribe(context.Background(), TranscriptionRequest{AudioPath: "a.wav"})
	require.Error(t, err)
	_, err = b.Transcribe(context.Background(), TranscriptionRequest{AudioPath: "a.wav", ModelPath: "m.bin"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not executable")
}

func TestIsMissingSharedLibraryError(t *testing.T) {
	t.Parallel()

	require.True(t, isMissingSharedLibraryError("error while loading shared libraries: libwhisper.so.1: cannot open shared object file"))
	require.True(t, isMissingSharedLibraryError("dyld: Library not loaded: @rpath/libwhisper.dylib"))
	require.False(t, isMissingSharedLibraryError("some other runtime error"))
}

func TestIsIllegalInstructionError(t *testing.T) {
	t.Parallel()

	require.True(t, isIllegalInstructionError("signal: illegal instruction (core dumped)"))
	require.False(t, isIllegalInstructionError(""))
}

func writeFakeEngine(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "whisper-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}
