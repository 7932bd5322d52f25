package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/wipsher/wipsher/internal/clipboard"
	"github.com/wipsher/wipsher/internal/config"
	"github.com/wipsher/wipsher/internal/hardware"
	"github.com/wipsher/wipsher/internal/logging"
	"github.com/wipsher/wipsher/internal/platform"
	"github.com/wipsher/wipsher/internal/version"
	"github.com/wipsher/wipsher/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const skipConfigAnnotation = "wipsher/skip-config"

type appState struct {
	configPath string
	verbose    bool
	jsonLogs   bool
	noProgress bool

	// Flag values. They only override the config file when set explicitly.
	model         string
	modelDir      string
	autoDownload  bool
	language      string
	device        string
	beamSize      int
	bestOf        int
	temperature   float64
	threads       int
	silenceGate   bool
	silenceDBFS   float64
	keepConverted bool

	output    string
	outputDir string
	copyOut   bool
	copyEmpty bool

	cfg    *config.Config
	logger *zap.Logger

	detectOnce  sync.Once
	recommended string
	specs       hardware.Specs

	detectFn   func(ctx context.Context) (string, hardware.Specs)
	engineFn   func() (whisper.Engine, error)
	copyFn     func(ctx context.Context, value string) error
	downloadFn whisper.DownloadFunc
}

func newAppState() *appState {
	defaults := config.Default()
	return &appState{
		model:         defaults.Model.Name,
		autoDownload:  defaults.Model.AutoDownload,
		language:      defaults.Transcription.Language,
		device:        defaults.Transcription.Device,
		beamSize:      defaults.Transcription.BeamSize,
		bestOf:        defaults.Transcription.BestOf,
		temperature:   defaults.Transcription.Temperature,
		threads:       defaults.Transcription.Threads,
		silenceGate:   defaults.Audio.SilenceGate,
		silenceDBFS:   defaults.Audio.SilenceThresholdDBFS,
		keepConverted: defaults.Audio.KeepConverted,
	}
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wipsher",
		Short:         "Transcribe audio and video files with whisper",
		Long:          "Transcribe audio and video files with a local whisper.cpp engine.\nWithout arguments wipsher shows the host specs, the recommended model and the installed models.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return app.runTranscribe(cmd.Context(), cmd.OutOrStdout(), args)
			}
			return app.runOverview(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindGlobalFlags(cmd, app)
	bindTranscriptionFlags(cmd, app)
	bindOutputFlags(cmd, app)

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newDownloadCmd(app))
	cmd.AddCommand(newSystemCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindGlobalFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&app.configPath, "config", app.configPath, "Config file (default ~/.config/wipsher/config.toml)")
	flags.BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	flags.BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	flags.BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	flags.StringVar(&app.model, "model", app.model, "Model name (auto|tiny|base|small|medium|large) or model file path")
	flags.StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
}

func bindTranscriptionFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code (auto|en|it|...) for transcription")
	cmd.Flags().StringVar(&app.device, "device", app.device, "Compute device: auto|cpu|gpu")
	cmd.Flags().IntVar(&app.beamSize, "beam-size", app.beamSize, "Beam search width")
	cmd.Flags().IntVar(&app.bestOf, "best-of", app.bestOf, "Number of candidates when sampling")
	cmd.Flags().Float64Var(&app.temperature, "temperature", app.temperature, "Sampling temperature")
	cmd.Flags().IntVar(&app.threads, "threads", app.threads, "Engine threads; 0 lets whisper decide")
	cmd.Flags().BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing models")
	cmd.Flags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Detect near-silent WAV audio and skip transcription")
	cmd.Flags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
	cmd.Flags().BoolVar(&app.keepConverted, "keep-converted", app.keepConverted, "Keep the WAV converted from a video next to the source")
}

func bindOutputFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVarP(&app.output, "output", "o", app.output, "Save the transcript to this file (single input only)")
	cmd.Flags().StringVar(&app.outputDir, "output-dir", app.outputDir, "Save each transcript as <name>.txt in this directory")
	cmd.Flags().BoolVar(&app.copyOut, "copy", app.copyOut, "Copy the transcript to the clipboard")
	cmd.Flags().BoolVar(&app.copyEmpty, "copy-empty", app.copyEmpty, "Copy blank transcripts to the clipboard")
}

// setup loads the config file and layers explicitly set flags on top.
func (a *appState) setup(cmd *cobra.Command) error {
	path, err := platform.ResolveConfigPath(a.configPath)
	if err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Path = path
	if cmd.Annotations[skipConfigAnnotation] != "true" {
		if cfg, err = config.Load(path); err != nil {
			return err
		}
	}

	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Verbose: a.verbose,
		JSON:    a.jsonLogs || strings.EqualFold(cfg.Logging.Format, "json"),
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.log().Debug("configuration loaded", zap.String("config", cfg.Path), zap.String("model", cfg.Model.Name), zap.String("language", cfg.Transcription.Language))
	return nil
}

func (a *appState) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("model") {
		cfg.Model.Name = a.model
	}
	if changed("model-dir") {
		cfg.Model.Dir = a.modelDir
	}
	if changed("auto-download") {
		cfg.Model.AutoDownload = a.autoDownload
	}
	if changed("language") {
		cfg.Transcription.Language = a.language
	}
	if changed("device") {
		cfg.Transcription.Device = strings.ToLower(a.device)
	}
	if changed("beam-size") {
		cfg.Transcription.BeamSize = a.beamSize
	}
	if changed("best-of") {
		cfg.Transcription.BestOf = a.bestOf
	}
	if changed("temperature") {
		cfg.Transcription.Temperature = a.temperature
	}
	if changed("threads") {
		cfg.Transcription.Threads = a.threads
	}
	if changed("silence-gate") {
		cfg.Audio.SilenceGate = a.silenceGate
	}
	if changed("silence-threshold-dbfs") {
		cfg.Audio.SilenceThresholdDBFS = a.silenceDBFS
	}
	if changed("keep-converted") {
		cfg.Audio.KeepConverted = a.keepConverted
	}

	cfg.Transcription.Language = sanitizeLanguage(cfg.Transcription.Language)
}

func (a *appState) config() *config.Config {
	if a.cfg == nil {
		a.cfg = config.Default()
	}
	return a.cfg
}

// detect runs hardware detection once per invocation.
func (a *appState) detect(ctx context.Context) (string, hardware.Specs) {
	a.detectOnce.Do(func() {
		detectFn := a.detectFn
		if detectFn == nil {
			detector := &hardware.Detector{Logger: a.log()}
			detectFn = detector.Recommend
		}

		stop := startSpinner(a.progressEnabled(), "Detecting hardware")
		a.recommended, a.specs = detectFn(ctx)
		stop()
	})
	return a.recommended, a.specs
}

func (a *appState) modelManager() (*whisper.Manager, error) {
	dir, err := platform.ResolveModelDir(a.config().Model.Dir)
	if err != nil {
		return nil, err
	}
	return &whisper.Manager{
		Dir:          dir,
		AutoDownload: a.config().Model.AutoDownload,
		NoProgress:   true,
		Download:     a.downloadFn,
		Logger:       a.log(),
	}, nil
}

func (a *appState) engine() (whisper.Engine, error) {
	if a.engineFn != nil {
		return a.engineFn()
	}
	return whisper.NewBundledEngine(a.log())
}

func (a *appState) copyText(ctx context.Context, value string) error {
	if a.copyFn != nil {
		return a.copyFn(ctx, value)
	}
	copier := &clipboard.Copier{}
	tool, err := copier.Tool()
	if err != nil {
		return err
	}
	a.log().Debug("copying transcript to clipboard", zap.String("tool", tool))
	return copier.CopyText(ctx, value)
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
