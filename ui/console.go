package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/franksops/tagsync/engine"
)

// ConsoleReporter draws one progress bar per transfer for headless runs.
type ConsoleReporter struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
	tag string
}

// NewConsoleReporter creates a reporter writing to w.
func NewConsoleReporter(w io.Writer, tag string) *ConsoleReporter {
	c := &ConsoleReporter{w: w, tag: tag}
	c.bar = progressbar.NewOptions(100,
		progressbar.OptionSetDescription(c.describe(engine.TransferStats{Status: engine.StatusStarting})),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
	return c
}

// Progress is an engine.ProgressFunc.
func (c *ConsoleReporter) Progress(s engine.TransferStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar.IsFinished() {
		return nil
	}
	c.bar.Describe(c.describe(s))
	if err := c.bar.Set(s.Percent); err != nil {
		return err
	}
	if s.Status.Terminal() && !c.bar.IsFinished() {
		return c.bar.Exit()
	}
	return nil
}

// Summary prints the outcome line below the bar.
func (c *ConsoleReporter) Summary(out engine.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bar.IsFinished() {
		c.bar.Exit()
	}
	fmt.Fprintln(c.w, out.Summary)
}

func (c *ConsoleReporter) describe(s engine.TransferStats) string {
	desc := fmt.Sprintf("%-12s %-9s", c.tag, s.Status)
	if s.Speed != "" {
		desc += " " + s.Speed
	}
	if s.ETA != "" && !s.Status.Terminal() {
		desc += " ETA " + s.ETA
	}
	return desc
}
