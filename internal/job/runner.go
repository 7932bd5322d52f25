package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wipsher/wipsher/internal/media"
	"github.com/wipsher/wipsher/internal/transcript"
	"github.com/wipsher/wipsher/internal/whisper"
	"go.uber.org/zap"
)

var ErrCanceled = errors.New("transcription canceled")

const (
	defaultStallTimeout  = 20 * time.Second
	defaultCheckInterval = time.Second

	pctPrepared    = 5
	pctModelStart  = 10
	pctModelLoaded = 30
	pctTranscribed = 99
)

type ModelSource interface {
	Ensure(ctx context.Context, ref string, onProgress func(percent int)) (whisper.ResolvedModel, error)
}

type ModelFetcher interface {
	Fetch(ctx context.Context, name string, onProgress func(percent int)) (whisper.ResolvedModel, bool, error)
}

type MediaPreparer interface {
	Prepare(ctx context.Context, path string) (media.Prepared, error)
}

type Request struct {
	Path  string
	Model string
	// Params carries decoding options; audio and model paths are filled in.
	Params whisper.TranscriptionRequest
}

type Result struct {
	JobID      string
	Source     string
	Model      whisper.ResolvedModel
	Transcript string
	Blank      bool
	Silent     bool
	Elapsed    time.Duration
}

// Runner executes transcription jobs one at a time.
type Runner struct {
	Engine whisper.Engine
	Models ModelSource
	Media  MediaPreparer
	// SilenceGate, when set, is asked about every WAV handed to the engine;
	// a true answer skips the engine and yields a blank transcript.
	SilenceGate func(path string) bool
	Logger      *zap.Logger

	// StallTimeout of zero means 20s; a negative value disables the watchdog.
	StallTimeout  time.Duration
	CheckInterval time.Duration
	Now           func() time.Time
	NewID         func() string
}

// Run prepares req.Path, makes sure the model is available and transcribes.
// onEvent may be nil; it is never called concurrently.
func (r *Runner) Run(ctx context.Context, req Request, onEvent func(Event)) (Result, error) {
	jobID := r.newID()
	logger := r.log().With(zap.String("job", jobID))
	started := r.now()

	t := newTracker(jobID, r.now, onEvent)
	stopWatch := watch(t, r.stallTimeout(), r.checkInterval(), logger)
	defer stopWatch()

	result := Result{JobID: jobID, Source: req.Path}
	fail := func(err error) (Result, error) {
		if ctx.Err() != nil {
			t.emit(StageCanceled, 0)
			logger.Warn("transcription canceled", zap.String("audio", req.Path))
			return result, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		}
		t.emit(StageFailed, 0)
		logger.Error("transcription failed", zap.String("audio", req.Path), zap.Error(err))
		return result, err
	}

	logger.Info("transcription job started", zap.String("audio", req.Path), zap.String("model", req.Model))
	t.emit(StageQueued, 0)

	if r.Engine == nil || r.Models == nil || r.Media == nil {
		return fail(errors.New("job runner is missing engine, models or media"))
	}

	t.emit(StagePreparing, 0)
	prepared, err := r.Media.Prepare(ctx, req.Path)
	if err != nil {
		return fail(err)
	}
	if prepared.Cleanup != nil {
		defer prepared.Cleanup()
	}
	t.emit(StagePreparing, pctPrepared)
	logger.Debug("media prepared", zap.String("path", prepared.Path), zap.Stringer("kind", prepared.Kind), zap.Bool("converted", prepared.Converted))

	if r.SilenceGate != nil && media.Classify(prepared.Path) == media.KindAudio && r.SilenceGate(prepared.Path) {
		result.Transcript = transcript.BlankToken
		result.Blank = true
		result.Silent = true
		result.Elapsed = r.now().Sub(started)
		t.emit(StageDone, 100)
		logger.Info("audio considered silent; skipping transcription", zap.String("audio", prepared.Path))
		return result, nil
	}

	if ctx.Err() != nil {
		return fail(ctx.Err())
	}

	t.emit(StageLoadingModel, pctModelStart)
	model, err := r.Models.Ensure(ctx, req.Model, t.scaled(StageLoadingModel, pctModelStart, pctModelLoaded))
	if err != nil {
		return fail(err)
	}
	result.Model = model
	t.emit(StageLoadingModel, pctModelLoaded)

	if ctx.Err() != nil {
		return fail(ctx.Err())
	}

	params := req.Params
	params.AudioPath = prepared.Path
	params.ModelPath = model.Path
	onEngine := t.scaled(StageTranscribing, pctModelLoaded, pctTranscribed)
	params.Progress = func(p int) {
		onEngine(p)
		if req.Params.Progress != nil {
			req.Params.Progress(p)
		}
	}

	t.emit(StageTranscribing, pctModelLoaded)
	logger.Info("transcribing...", zap.String("audio", prepared.Path), zap.String("model", model.Path), zap.String("language", params.Language), zap.Bool("gpu", params.UseGPU))
	text, err := r.Engine.Transcribe(ctx, params)
	if err != nil {
		return fail(err)
	}

	result.Transcript = text
	result.Blank = transcript.IsBlank(text)
	result.Elapsed = r.now().Sub(started)
	t.emit(StageDone, 100)
	logger.Info("transcription finished", zap.Duration("elapsed", result.Elapsed), zap.Bool("blank", result.Blank))

	return result, nil
}

// RunDownload fetches a model under the same progress and stall monitoring
// as a transcription.
func (r *Runner) RunDownload(ctx context.Context, fetcher ModelFetcher, name string, onEvent func(Event)) (whisper.ResolvedModel, bool, error) {
	jobID := r.newID()
	logger := r.log().With(zap.String("job", jobID))

	t := newTracker(jobID, r.now, onEvent)
	stopWatch := watch(t, r.stallTimeout(), r.checkInterval(), logger)
	defer stopWatch()

	logger.Info("model download started", zap.String("model", name))
	t.emit(StageDownloading, 0)

	resolved, downloaded, err := fetcher.Fetch(ctx, name, t.scaled(StageDownloading, 0, 100))
	if err != nil {
		if ctx.Err() != nil {
			t.emit(StageCanceled, 0)
			return whisper.ResolvedModel{}, false, fmt.Errorf("download canceled: %w", ctx.Err())
		}
		t.emit(StageFailed, 0)
		logger.Error("model download failed", zap.String("model", name), zap.Error(err))
		return whisper.ResolvedModel{}, false, err
	}

	t.emit(StageDone, 100)
	logger.Info("model download finished", zap.String("model", resolved.Name), zap.Bool("downloaded", downloaded))
	return resolved, downloaded, nil
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) stallTimeout() time.Duration {
	if r.StallTimeout == 0 {
		return defaultStallTimeout
	}
	return r.StallTimeout
}

func (r *Runner) checkInterval() time.Duration {
	if r.CheckInterval <= 0 {
		return defaultCheckInterval
	}
	return r.CheckInterval
}

func (r *Runner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
