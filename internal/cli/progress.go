package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
)

// stageProgress wraps a progressbar.ProgressBar, grounded on the
// teacher's internal/cli/progress.go CLIProgressReporter (one bar per
// pipeline stage, throttled redraw, blank line on completion). Silenced
// entirely when quiet is set.
type stageProgress struct {
	quiet bool
	bar   *progressbar.ProgressBar
}

func newStageProgress(quiet bool) *stageProgress {
	return &stageProgress{quiet: quiet}
}

func (p *stageProgress) start(label string, total int) {
	if p.quiet {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)
}

func (p *stageProgress) add(n int) {
	if p.quiet || p.bar == nil {
		return
	}
	p.bar.Add(n)
}

func (p *stageProgress) finish() {
	if p.quiet || p.bar == nil {
		return
	}
	p.bar.Finish()
	p.bar = nil
}
