package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/wipsher/wipsher/internal/platform"
	"go.uber.org/zap"
)

const (
	enginePathEnv   = "WIPSHER_WHISPER_PATH"
	stderrTailLines = 20
)

var progressPattern = regexp.MustCompile(`progress\s*=\s*(\d{1,3})%`)

// BundledEngine drives a whisper.cpp whisper-cli executable.
type BundledEngine struct {
	Executable string
	Logger     *zap.Logger
}

func NewBundledEngine(logger *zap.Logger) (*BundledEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv(enginePathEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%s is not executable: %w", enginePathEnv, err)
		}
		return &BundledEngine{Executable: override, Logger: logger}, nil
	}

	selfExe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve wipsher executable path: %w", err)
	}

	whisperExe, err := ResolveBundledEnginePath(selfExe, exec.LookPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("whisper engine resolved", zap.String("engine", whisperExe))
	return &BundledEngine{Executable: whisperExe, Logger: logger}, nil
}

// ResolveBundledEnginePath checks the install layouts next to selfExe and
// then falls back to whisper-cli on PATH.
func ResolveBundledEnginePath(selfExe string, lookPath func(string) (string, error)) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExe) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	if lookPath != nil {
		if onPath, err := lookPath(engineBinaryName()); err == nil {
			return onPath, nil
		}
	}

	return "", fmt.Errorf("whisper engine not found near %s or on PATH; install whisper.cpp's %s or set %s", selfExe, engineBinaryName(), enginePathEnv)
}

func EnginePathCandidates(selfExe string) []string {
	binDir := filepath.Dir(selfExe)
	engineName := engineBinaryName()

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", platform.CurrentRuntime().Target(), engineName),
		filepath.Join(binDir, engineName),
	}
}

func (b *BundledEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return "", errors.New("audio path is required")
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return "", errors.New("model path is required")
	}

	if err := ensureExecutable(b.Executable); err != nil {
		return "", fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	outBase := filepath.Join(os.TempDir(), fmt.Sprintf("wipsher-%d", time.Now().UnixNano()))
	txtOut := outBase + ".txt"
	defer os.Remove(txtOut)

	args := buildArgs(req, outBase)
	sink := &engineOutput{tail: newLineTail(stderrTailLines), progress: req.Progress}
	cmd := exec.CommandContext(ctx, b.Executable, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = sink
	cmd.WaitDelay = 2 * time.Second

	logger.Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	runErr := cmd.Run()
	sink.Flush()

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		errText := sink.tail.String()
		if isMissingSharedLibraryError(errText) {
			return "", fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); reinstall whisper.cpp or rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(runErr.Error()) {
			return "", fmt.Errorf("whisper engine crashed with an illegal CPU instruction; " +
				"your CPU may lack required instruction set extensions; " +
				"set " + enginePathEnv + " to a whisper-cli binary built for your CPU")
		}
		return "", fmt.Errorf("whisper transcribe failed: %w (%s)", runErr, errText)
	}

	content, err := os.ReadFile(txtOut)
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}

	return strings.TrimSpace(string(content)), nil
}

func buildArgs(req TranscriptionRequest, outBase string) []string {
	args := []string{"-m", req.ModelPath, "-f", req.AudioPath, "-nt", "-otxt", "-of", outBase, "-pp"}

	if req.BeamSize > 0 {
		args = append(args, "-bs", strconv.Itoa(req.BeamSize))
	}
	if req.BestOf > 0 {
		args = append(args, "-bo", strconv.Itoa(req.BestOf))
	}
	args = append(args, "-tp", strconv.FormatFloat(req.Temperature, 'f', -1, 64))

	lang := strings.TrimSpace(req.Language)
	if lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}
	if req.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(req.Threads))
	}
	if !req.UseGPU {
		args = append(args, "-ng")
	}

	return append(args, req.ExtraArgs...)
}

// engineOutput consumes whisper-cli stderr, turning progress lines into
// callbacks and keeping the remaining lines for error messages. Lines end
// at \n or at a bare \r, which whisper-cli uses when redrawing progress.
type engineOutput struct {
	tail     *lineTail
	progress func(int)
	partial  []byte
}

func (o *engineOutput) Write(p []byte) (int, error) {
	data := append(o.partial, p...)
	for {
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		o.handleLine(string(data[:i]))
		data = data[i+1:]
	}
	o.partial = append(o.partial[:0], data...)
	return len(p), nil
}

func (o *engineOutput) Flush() {
	if len(o.partial) > 0 {
		o.handleLine(string(o.partial))
		o.partial = o.partial[:0]
	}
}

func (o *engineOutput) handleLine(line string) {
	if percent, ok := parseProgress(line); ok {
		if o.progress != nil {
			o.progress(percent)
		}
		return
	}
	o.tail.Add(line)
}

func parseProgress(line string) (int, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if len(match) < 2 {
		return 0, false
	}
	percent, err := strconv.Atoi(match[1])
	if err != nil || percent > 100 {
		return 0, false
	}
	return percent, true
}

type lineTail struct {
	limit int
	lines []string
}

func newLineTail(limit int) *lineTail {
	return &lineTail{limit: limit}
}

func (t *lineTail) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
