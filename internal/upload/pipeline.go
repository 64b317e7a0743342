// Package upload moves completed sessions off the telemetry path and delivers
// their summaries to the telemetry backend.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"treadmill-relay/internal/session"
)

var (
	ErrEmptySession = errors.New("upload: session has no samples")
	ErrLowMemory    = errors.New("upload: insufficient memory headroom")
	ErrQueueFull    = errors.New("upload: hand-off queue full")
	ErrNotConnected = errors.New("upload: network not connected")

	errNoDatabase = errors.New("upload: no database configured")
)

const recentOutcomes = 10

type Options struct {
	QueueDepth  int
	MemoryFloor uint64
	Attempts    int
	Backoff     time.Duration
	IdleTimeout time.Duration
	DeviceName  string
	NoiseFloor  float64
}

func DefaultOptions() Options {
	return Options{
		QueueDepth:  3,
		MemoryFloor: 40 * 1024,
		Attempts:    3,
		Backoff:     2 * time.Second,
		IdleTimeout: 5 * time.Second,
		DeviceName:  "treadmill-relay",
		NoiseFloor:  0.1,
	}
}

// Connectivity is the network manager as seen by the worker.
type Connectivity interface {
	Connected() bool
	Reconnect(ctx context.Context) error
}

// Job is a queued session. The worker owns it once received.
type Job struct {
	Record   session.Record
	Attempts int
}

// Outcome is the terminal result of one job.
type Outcome struct {
	SessionID string    `json:"session_id"`
	Code      int       `json:"code"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type Stats struct {
	QueueDepth int   `json:"queue_depth"`
	Sending    bool  `json:"sending"`
	Uploaded   int64 `json:"uploaded"`
	Failed     int64 `json:"failed"`
	Rejected   int64 `json:"rejected"`
}

type Pipeline struct {
	opts   Options
	queue  chan Job
	sender Sender
	conn   Connectivity
	free   MemoryProbe
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time

	sending  atomic.Bool
	uploaded atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64

	mu       sync.Mutex
	recent   []Outcome
	onResult func(Outcome)
}

func New(opts Options, sender Sender, conn Connectivity, free MemoryProbe, logger *slog.Logger) *Pipeline {
	def := DefaultOptions()
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = def.QueueDepth
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = def.IdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		opts:   opts,
		queue:  make(chan Job, opts.QueueDepth),
		sender: sender,
		conn:   conn,
		free:   free,
		log:    logger.With("component", "upload"),
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// OnResult registers a callback invoked by the worker after each terminal
// outcome. Set it before Run.
func (p *Pipeline) OnResult(fn func(Outcome)) {
	p.onResult = fn
}

// Submit queues rec for delivery without blocking. A rejected record is gone;
// nothing retries it later.
func (p *Pipeline) Submit(rec session.Record) error {
	if len(rec.Samples) == 0 {
		return p.reject(rec, ErrEmptySession)
	}
	if p.free != nil {
		if free := p.free(); free < p.opts.MemoryFloor {
			return p.reject(rec, fmt.Errorf("%w: %d bytes free, need %d", ErrLowMemory, free, p.opts.MemoryFloor))
		}
	}

	select {
	case p.queue <- Job{Record: rec}:
		p.log.Info("session queued", "id", rec.ID, "samples", len(rec.Samples), "depth", len(p.queue))
		return nil
	default:
		return p.reject(rec, ErrQueueFull)
	}
}

func (p *Pipeline) reject(rec session.Record, err error) error {
	p.rejected.Add(1)
	p.log.Warn("session rejected", "id", rec.ID, "err", err)
	return err
}

// Run is the worker loop. It returns only when ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	idle := time.NewTimer(p.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			p.sending.Store(false)
		case job := <-p.queue:
			p.sending.Store(true)
			p.finish(p.deliver(ctx, job))
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(p.opts.IdleTimeout)
	}
}

func (p *Pipeline) deliver(ctx context.Context, job Job) Outcome {
	summary := Summarize(job.Record, p.opts.DeviceName, p.opts.NoiseFloor)

	var code int
	var err error
	for job.Attempts < p.opts.Attempts {
		job.Attempts++
		code, err = p.attempt(ctx, summary)
		if Success(code) {
			return Outcome{SessionID: job.Record.ID, Code: code, Status: StatusText(code), Attempts: job.Attempts, Delivered: true, At: p.now()}
		}
		p.log.Warn("upload attempt failed", "id", job.Record.ID, "attempt", job.Attempts, "code", code, "status", StatusText(code), "err", err)

		if job.Attempts < p.opts.Attempts {
			if serr := p.sleep(ctx, p.opts.Backoff*time.Duration(job.Attempts)); serr != nil {
				err = serr
				break
			}
		}
	}

	out := Outcome{SessionID: job.Record.ID, Code: code, Status: StatusText(code), Attempts: job.Attempts, At: p.now()}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func (p *Pipeline) attempt(ctx context.Context, summary Summary) (int, error) {
	if p.conn != nil && !p.conn.Connected() {
		if err := p.conn.Reconnect(ctx); err != nil {
			return StatusNotConnected, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		if !p.conn.Connected() {
			return StatusNotConnected, ErrNotConnected
		}
	}
	return p.sender.Send(ctx, summary)
}

func (p *Pipeline) finish(out Outcome) {
	if out.Delivered {
		p.uploaded.Add(1)
		p.log.Info("session uploaded", "id", out.SessionID, "code", out.Code, "attempts", out.Attempts)
	} else {
		p.failed.Add(1)
		p.log.Error("session dropped after retries", "id", out.SessionID, "code", out.Code, "status", out.Status, "attempts", out.Attempts, "err", out.Error)
	}

	p.mu.Lock()
	p.recent = append(p.recent, out)
	if len(p.recent) > recentOutcomes {
		p.recent = p.recent[len(p.recent)-recentOutcomes:]
	}
	p.mu.Unlock()

	if p.onResult != nil {
		p.onResult(out)
	}
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		QueueDepth: len(p.queue),
		Sending:    p.sending.Load(),
		Uploaded:   p.uploaded.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
	}
}

// Recent returns the latest outcomes, oldest first.
func (p *Pipeline) Recent() []Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Outcome, len(p.recent))
	copy(out, p.recent)
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
