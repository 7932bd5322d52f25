package cli

import (
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/wipsher/wipsher/internal/job"
)

type stopFunc func()

func startSpinner(enabled bool, description string) stopFunc {
	if !enabled {
		return func() {}
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}

// jobProgress renders job events as a 0-100 bar labelled with the stage.
type jobProgress struct {
	label string
	bar   *progressbar.ProgressBar
	stage job.Stage
}

func startJobProgress(enabled bool, label string) *jobProgress {
	p := &jobProgress{label: label}
	if !enabled {
		return p
	}

	p.bar = progressbar.NewOptions(
		100,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return p
}

func (p *jobProgress) update(event job.Event) {
	if p == nil || p.bar == nil {
		return
	}

	if event.Stage != p.stage {
		p.stage = event.Stage
		p.bar.Describe(p.label + " " + stageLabel(event.Stage))
	}
	_ = p.bar.Set(event.Percent)
}

func (p *jobProgress) finish() {
	if p == nil || p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

func stageLabel(stage job.Stage) string {
	switch stage {
	case job.StageQueued:
		return "(queued)"
	case job.StagePreparing:
		return "(preparing audio)"
	case job.StageLoadingModel:
		return "(loading model)"
	case job.StageTranscribing:
		return "(transcribing)"
	case job.StageDownloading:
		return "(downloading)"
	default:
		return "(" + string(stage) + ")"
	}
}
