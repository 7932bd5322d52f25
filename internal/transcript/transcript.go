package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlankToken is what whisper.cpp emits for audio without speech.
const BlankToken = "[BLANK_AUDIO]"

var ErrEmpty = errors.New("no transcript to save")

func IsBlank(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, BlankToken)
}

func NoSpeechHint() string {
	return "No speech detected. Check that the file has audible speech and that the selected language is right."
}

// Save writes text as UTF-8 to path, creating missing parent directories.
func Save(path, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create transcript directory: %w", err)
		}
	}

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// OutputPath maps an input media path to <dir>/<base>.txt.
func OutputPath(dir, source string) string {
	base := filepath.Base(source)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".txt")
}
