package client

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/dto"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

type ProgressConfig struct {
	Enabled bool
	Writer  io.Writer
}

// ProgressTracker renders a job's pipeline stage as a progress bar
type ProgressTracker struct {
	container *mpb.Progress
	bar       *mpb.Bar
	enabled   bool

	mu    sync.Mutex
	stage string
}

func NewProgressTracker(config ProgressConfig, description string) *ProgressTracker {
	if !config.Enabled {
		return &ProgressTracker{enabled: false}
	}

	writer := config.Writer
	if writer == nil {
		writer = os.Stderr
	}

	t := &ProgressTracker{enabled: true, stage: string(model.StageQueued)}
	t.container = mpb.New(
		mpb.WithOutput(writer),
		mpb.WithRefreshRate(120*time.Millisecond),
		// render even when writer is not a terminal
		mpb.WithAutoRefresh(),
	)
	t.bar = t.container.AddBar(int64(model.StageCount),
		mpb.PrependDecorators(
			decor.Name(description+" ", decor.WC{W: len(description) + 1, C: decor.DindentRight}),
			decor.Any(func(decor.Statistics) string { return t.currentStage() }, decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.NewPercentage("%.0f", decor.WCSyncSpace),
			decor.OnComplete(
				decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncWidth), " ✓ ",
			),
		),
	)
	return t
}

func (t *ProgressTracker) currentStage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Update moves the bar to the job's current stage. A failed job aborts the
// bar where it stopped.
func (t *ProgressTracker) Update(job *dto.JobResponse) {
	if !t.enabled || t.bar == nil || job == nil {
		return
	}

	t.mu.Lock()
	if job.Progress != "" {
		t.stage = string(job.Progress)
	} else {
		t.stage = string(job.Status)
	}
	t.mu.Unlock()

	switch job.Status {
	case model.JobStatusCompleted:
		t.bar.SetCurrent(int64(model.StageCount))
	case model.JobStatusFailed:
		t.bar.Abort(false)
	default:
		t.bar.SetCurrent(int64(job.Progress.Step()))
	}
}

// Wait stops a bar that never finished and blocks until it has been
// rendered for the last time
func (t *ProgressTracker) Wait() {
	if t.enabled && t.container != nil {
		t.bar.Abort(false)
		t.container.Wait()
	}
}

func IsTTY(writer io.Writer) bool {
	if writer == nil {
		return false
	}

	if file, ok := writer.(*os.File); ok {
		stat, err := file.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func ShouldShowProgress(forced bool) bool {
	if forced {
		return true
	}

	return IsTTY(os.Stderr)
}
