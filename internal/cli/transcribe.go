package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wipsher/wipsher/internal/audio"
	"github.com/wipsher/wipsher/internal/clipboard"
	"github.com/wipsher/wipsher/internal/job"
	"github.com/wipsher/wipsher/internal/media"
	"github.com/wipsher/wipsher/internal/transcript"
	"github.com/wipsher/wipsher/internal/whisper"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <file>...",
		Short: "Transcribe audio or video files",
		Long: "Transcribe audio or video files.\nSupported extensions: " +
			strings.Join(media.SupportedExtensions(), " ") +
			"\nEverything except WAV is converted with ffmpeg first.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runTranscribe(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}

	bindTranscriptionFlags(cmd, app)
	bindOutputFlags(cmd, app)
	return cmd
}

func (a *appState) runTranscribe(ctx context.Context, out io.Writer, paths []string) error {
	if a.output != "" && a.outputDir != "" {
		return errors.New("--output and --output-dir are mutually exclusive")
	}
	if a.output != "" && len(paths) > 1 {
		return errors.New("--output accepts a single input; use --output-dir for several files")
	}

	inputs := make([]string, 0, len(paths))
	for _, path := range paths {
		path = filepath.Clean(path)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("file not found: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		if media.Classify(path) == media.KindUnsupported {
			return fmt.Errorf("%w: %s (supported: %s)", media.ErrUnsupportedFormat, path, strings.Join(media.SupportedExtensions(), " "))
		}
		inputs = append(inputs, path)
	}

	cfg := a.config()
	manager, err := a.modelManager()
	if err != nil {
		return err
	}

	modelRef, err := a.selectModel(ctx, manager)
	if err != nil {
		return err
	}

	engine, err := a.engine()
	if err != nil {
		return err
	}

	params, err := a.transcriptionParams(ctx)
	if err != nil {
		return err
	}

	runner := &job.Runner{
		Engine: engine,
		Models: manager,
		Media: &media.Converter{
			KeepConverted: cfg.Audio.KeepConverted,
			Logger:        a.log(),
		},
		Logger:       a.log(),
		StallTimeout: cfg.StallTimeout(),
	}
	if cfg.Audio.SilenceGate {
		runner.SilenceGate = a.newSilenceGate(cfg.Audio.SilenceThresholdDBFS)
	}

	var copied []string
	for i, path := range inputs {
		display := startJobProgress(a.progressEnabled(), filepath.Base(path))
		result, err := runner.Run(ctx, job.Request{Path: path, Model: modelRef, Params: params}, display.update)
		display.finish()
		if err != nil {
			if len(inputs) > 1 {
				return fmt.Errorf("%s: %w", path, err)
			}
			return err
		}

		if len(inputs) > 1 {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "==> %s <==\n", path)
		}
		fmt.Fprintln(out, result.Transcript)

		switch {
		case result.Silent:
			a.log().Info("audio below the silence threshold; transcription skipped", zap.String("audio", path))
		case result.Blank:
			a.log().Warn(transcript.NoSpeechHint(), zap.String("audio", path))
		}

		if err := a.saveTranscript(path, result); err != nil {
			return err
		}

		if !result.Blank || a.copyEmpty {
			copied = append(copied, result.Transcript)
		}
	}

	if a.copyOut {
		a.copyTranscripts(ctx, copied)
	}
	return nil
}

// selectModel resolves "auto" against the installed models and the host.
func (a *appState) selectModel(ctx context.Context, manager *whisper.Manager) (string, error) {
	cfg := a.config()
	ref := strings.TrimSpace(cfg.Model.Name)
	if ref != "" && !strings.EqualFold(ref, whisper.AutoModel) {
		return ref, nil
	}

	if !cfg.Model.AutoDownload && len(manager.Inventory().Downloaded) == 0 {
		return "", whisper.ErrNoModels
	}

	recommended, _ := a.detect(ctx)
	selected := manager.Select(ref, recommended)
	a.log().Info("model selected", zap.String("model", selected), zap.String("recommended", recommended))
	return selected, nil
}

func (a *appState) transcriptionParams(ctx context.Context) (whisper.TranscriptionRequest, error) {
	cfg := a.config().Transcription

	extra, err := whisper.SplitExtraArgs(cfg.ExtraArgs)
	if err != nil {
		return whisper.TranscriptionRequest{}, err
	}

	params := whisper.TranscriptionRequest{
		Language:    cfg.Language,
		BeamSize:    cfg.BeamSize,
		BestOf:      cfg.BestOf,
		Temperature: cfg.Temperature,
		Threads:     cfg.Threads,
		ExtraArgs:   extra,
	}

	switch cfg.Device {
	case "gpu":
		params.UseGPU = true
	case "cpu":
		params.UseGPU = false
	default:
		_, specs := a.detect(ctx)
		params.UseGPU = specs.HasGPU()
	}
	a.log().Debug("compute device resolved", zap.String("device", cfg.Device), zap.Bool("gpu", params.UseGPU))

	return params, nil
}

func (a *appState) newSilenceGate(thresholdDBFS float64) func(string) bool {
	return func(path string) bool {
		silent, metrics, err := audio.IsSilentWAV(path, thresholdDBFS)
		if err != nil {
			a.log().Warn("silence gate analysis failed; continuing transcription", zap.Error(err), zap.String("audio", path))
			return false
		}

		fields := []zap.Field{
			zap.String("audio", path),
			zap.Float64("rms_dbfs", metrics.RMSdBFS),
			zap.Float64("peak_dbfs", metrics.PeakdBFS),
			zap.Float64("threshold_dbfs", thresholdDBFS),
		}
		if duration, err := audio.Duration(path); err == nil {
			fields = append(fields, zap.Duration("duration", duration))
		}
		a.log().Debug("silence gate analyzed audio", append(fields, zap.Bool("silent", silent))...)
		return silent
	}
}

func (a *appState) saveTranscript(source string, result job.Result) error {
	var target string
	switch {
	case a.output != "":
		target = a.output
	case a.outputDir != "":
		target = transcript.OutputPath(a.outputDir, source)
	default:
		return nil
	}

	if result.Blank {
		a.log().Warn(transcript.ErrEmpty.Error(), zap.String("audio", source))
		return nil
	}

	if err := transcript.Save(target, result.Transcript); err != nil {
		return err
	}
	a.log().Info("transcript saved", zap.String("path", target))
	return nil
}

func (a *appState) copyTranscripts(ctx context.Context, texts []string) {
	if len(texts) == 0 {
		a.log().Info("nothing to copy to clipboard")
		return
	}

	if err := a.copyText(ctx, strings.Join(texts, "\n\n")); err != nil {
		if errors.Is(err, clipboard.ErrUnavailable) {
			a.log().Warn("clipboard tool unavailable; transcript left on stdout")
			return
		}
		a.log().Warn("failed to copy transcript to clipboard; transcript left on stdout", zap.Error(err))
		return
	}
	a.log().Info("transcript copied to clipboard")
}
