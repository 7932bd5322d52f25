package whisper

import (
	"context"
	"fmt"

	"github.com/google/shlex"
)

type TranscriptionRequest struct {
	AudioPath   string
	ModelPath   string
	Language    string
	UseGPU      bool
	BeamSize    int
	BestOf      int
	Temperature float64
	Threads     int
	ExtraArgs   []string
	// Progress receives the engine's own 0-100 progress when it reports any.
	Progress func(percent int)
}

type Engine interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}

// SplitExtraArgs splits a shell-style argument string from the config file.
func SplitExtraArgs(raw string) ([]string, error) {
	args, err := shlex.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("parse extra engine args %q: %w", raw, err)
	}
	return args, nil
}
