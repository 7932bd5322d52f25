package cli

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
	"github.com/wipsher/wipsher/internal/hardware"
	"github.com/wipsher/wipsher/internal/whisper"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

type fakeEngine struct {
	mu    sync.Mutex
	text  map[string]string
	calls []whisper.TranscriptionRequest
}

func (f *fakeEngine) Transcribe(_ context.Context, req whisper.TranscriptionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req)
	if req.Progress != nil {
		req.Progress(50)
		req.Progress(100)
	}
	if text, ok := f.text[filepath.Base(req.AudioPath)]; ok {
		return text, nil
	}
	return "Ciao a tutti", nil
}

func (f *fakeEngine) requests() []whisper.TranscriptionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]whisper.TranscriptionRequest(nil), f.calls...)
}

// testEnv isolates config, model dir, hardware and engine for one command run.
type testEnv struct {
	app        *appState
	engine     *fakeEngine
	dir        string
	modelDir   string
	configPath string
	specs      hardware.Specs
	copied     []string
	downloads  []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		engine:     &fakeEngine{text: map[string]string{}},
		dir:        dir,
		modelDir:   filepath.Join(dir, "models"),
		configPath: filepath.Join(dir, "config.toml"),
		specs:      hardware.Specs{PhysicalCores: 8, RAMTotalGB: 16, RAMAvailableGB: 12.5, RAMAvailableBytes: 25 << 29},
	}

	app := newAppState()
	app.detectFn = func(context.Context) (string, hardware.Specs) {
		return hardware.Recommend(env.specs), env.specs
	}
	app.engineFn = func() (whisper.Engine, error) {
		return env.engine, nil
	}
	app.copyFn = func(_ context.Context, value string) error {
		env.copied = append(env.copied, value)
		return nil
	}
	app.downloadFn = func(_ context.Context, model whisper.ResolvedModel, onProgress func(int)) error {
		env.downloads = append(env.downloads, model.Name)
		onProgress(100)
		return os.WriteFile(model.Path, []byte("weights"), 0o644)
	}
	env.app = app
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd(e.app)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append(args, "--config", e.configPath, "--model-dir", e.modelDir, "--no-progress"))

	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) installModel(t *testing.T, name string) string {
	t.Helper()

	model, ok := whisper.LookupModel(name)
	require.True(t, ok)
	require.NoError(t, os.MkdirAll(e.modelDir, 0o755))
	path := filepath.Join(e.modelDir, model.FileName)
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

func (e *testEnv) withModel(t *testing.T, name string) *testEnv {
	t.Helper()
	e.installModel(t, name)
	return e
}

func (e *testEnv) writeConfig(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(e.configPath, []byte(content), 0o600))
}

func writeSpeechWAV(t *testing.T, dir, name string) string {
	t.Helper()

	samples := make([]int, 16000)
	for i := range samples {
		samples[i] = int(0.3 * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000.0))
	}
	return writeWAV(t, dir, name, samples)
}

func writeSilentWAV(t *testing.T, dir, name string) string {
	t.Helper()
	return writeWAV(t, dir, name, make([]int, 16000))
}

func writeWAV(t *testing.T, dir, name string, samples []int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}
