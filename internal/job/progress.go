package job

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type Stage string

const (
	StageQueued       Stage = "queued"
	StagePreparing    Stage = "preparing"
	StageLoadingModel Stage = "loading-model"
	StageTranscribing Stage = "transcribing"
	StageDownloading  Stage = "downloading"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
	StageCanceled     Stage = "canceled"
)

// Event is one progress update. Percent never decreases within a job.
type Event struct {
	JobID   string
	Stage   Stage
	Percent int
	At      time.Time
}

// tracker serializes events for a job and feeds the stall watchdog.
type tracker struct {
	jobID   string
	now     func() time.Time
	onEvent func(Event)

	mu         sync.Mutex
	percent    int
	stage      Stage
	lastUpdate time.Time
	stalled    bool
}

func newTracker(jobID string, now func() time.Time, onEvent func(Event)) *tracker {
	return &tracker{jobID: jobID, now: now, onEvent: onEvent, lastUpdate: now()}
}

func (t *tracker) emit(stage Stage, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if percent < t.percent {
		percent = t.percent
	}
	if percent > 100 {
		percent = 100
	}
	t.percent = percent
	t.stage = stage
	t.lastUpdate = t.now()
	t.stalled = false

	if t.onEvent != nil {
		t.onEvent(Event{JobID: t.jobID, Stage: stage, Percent: percent, At: t.lastUpdate})
	}
}

// scaled maps an inner 0-100 progress onto the [from, to] window of the job.
func (t *tracker) scaled(stage Stage, from, to int) func(int) {
	return func(inner int) {
		if inner < 0 {
			inner = 0
		}
		if inner > 100 {
			inner = 100
		}
		t.emit(stage, from+(to-from)*inner/100)
	}
}

// checkStall reports a stall once per quiet period.
func (t *tracker) checkStall(timeout time.Duration) (time.Duration, Stage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := t.now().Sub(t.lastUpdate)
	if t.stalled || elapsed <= timeout {
		return elapsed, t.stage, false
	}
	t.stalled = true
	return elapsed, t.stage, true
}

// watch runs the stall watchdog until the returned stop function is called.
func watch(t *tracker, timeout, interval time.Duration, logger *zap.Logger) func() {
	if timeout <= 0 {
		return func() {}
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if elapsed, stage, stalled := t.checkStall(timeout); stalled {
					logger.Warn("no progress update for more than "+timeout.String()+"; the operation may be stuck",
						zap.String("stage", string(stage)),
						zap.Duration("quiet_for", elapsed.Round(time.Second)),
					)
				}
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
