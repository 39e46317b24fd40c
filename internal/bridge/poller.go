package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cesargomez89/stemforge/internal/domain"
	"github.com/cesargomez89/stemforge/internal/logger"
)

// Source yields the current classified progress record.
type Source interface {
	GetProgress(ctx context.Context) *domain.ProgressRecord
}

// Sink receives deduplicated progress updates.
type Sink interface {
	Broadcast(rec *domain.ProgressRecord)
}

// History is the slice of the job store the poller closes out.
type History interface {
	FinishJob(id string, stage domain.Stage, percent int, errorMsg string) error
}

// Poller runs one shared poll loop while a job is live. Kick starts it
// on job launch (or on discovering an active job at startup); the loop
// stops itself on a terminal stage after emitting the final update and
// the desktop notification. Identical consecutive observations are
// suppressed.
type Poller struct {
	Source   Source
	Sink     Sink
	Notifier Notifier
	History  History
	Interval time.Duration
	Log      *logger.Logger

	mu      sync.Mutex
	running bool
	pending bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	lastStage   domain.Stage
	lastPercent int
	seen        bool
	finishedJob string
}

func NewPoller(src Source, sink Sink, notifier Notifier, hist History, interval time.Duration, log *logger.Logger) *Poller {
	return &Poller{
		Source:   src,
		Sink:     sink,
		Notifier: notifier,
		History:  hist,
		Interval: interval,
		Log:      log.WithComponent("poller"),
	}
}

// Kick starts the poll loop. If the loop is mid-shutdown the kick is
// remembered so the new job is not left without fan-out.
func (p *Poller) Kick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.running {
		p.pending = true
		return
	}
	p.startLocked()
}

func (p *Poller) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.seen = false
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx)
	}()
}

// Close stops the loop and waits for it to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.pending = false
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Running reports whether the poll loop is live.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.running = false
		if p.pending && !p.closed {
			p.pending = false
			p.startLocked()
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.Log.Debug("Poll loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := p.tick(ctx); done {
				p.Log.Debug("Poll loop stopped")
				return
			}
		}
	}
}

// tick observes the record once and reports whether the loop is done,
// which it is as soon as the job is no longer live.
func (p *Poller) tick(ctx context.Context) bool {
	rec := p.Source.GetProgress(ctx)

	changed := !p.seen || rec.Stage != p.lastStage || rec.Percent != p.lastPercent
	p.seen = true
	p.lastStage = rec.Stage
	p.lastPercent = rec.Percent

	if changed {
		p.Sink.Broadcast(rec)
	}

	if rec.Stage.Active() {
		return false
	}
	if rec.Stage == domain.StageIdle {
		return true
	}

	// Terminal observation: close the history row and notify, once per
	// job even if the record lingers on disk.
	if rec.JobID != "" && rec.JobID != p.finishedJob {
		p.finishedJob = rec.JobID
		if err := p.History.FinishJob(rec.JobID, rec.Stage, rec.Percent, rec.Error); err != nil {
			p.Log.Warn("Failed to close job history row", "job_id", rec.JobID, "error", err)
		}
		title, body := notificationFor(rec)
		if err := p.Notifier.Notify(ctx, title, body); err != nil {
			p.Log.Debug("Notification not delivered", "error", err)
		}
	}
	return true
}

func notificationFor(rec *domain.ProgressRecord) (string, string) {
	switch rec.Stage {
	case domain.StageError:
		return "Job failed", fmt.Sprintf("%s: %s", rec.Title, rec.Message)
	case domain.StageStale:
		return "Job stalled", fmt.Sprintf("%s: %s", rec.Title, rec.Message)
	default:
		return "Job finished", fmt.Sprintf("%s: %s", rec.Title, rec.Message)
	}
}
