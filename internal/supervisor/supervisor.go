// Package supervisor paces timeout evaluation and keeps the treadmill link
// and the backend connection alive.
package supervisor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Component is a connection the supervisor can restore.
type Component interface {
	Connected() bool
	Reconnect(ctx context.Context) error
}

type Options struct {
	TickInterval   time.Duration
	HealthInterval time.Duration
}

func DefaultOptions() Options {
	return Options{TickInterval: time.Second, HealthInterval: 30 * time.Second}
}

// Health is the result of one health pass.
type Health struct {
	Link       bool
	Network    bool
	ClockValid bool
}

type Supervisor struct {
	opts       Options
	link       Component
	network    Component
	clockValid func(time.Time) bool
	log        *slog.Logger
	now        func() time.Time
	ticks      chan time.Time
	checking   atomic.Bool
}

func New(opts Options, link, network Component, clockValid func(time.Time) bool, logger *slog.Logger) *Supervisor {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = def.HealthInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		opts:       opts,
		link:       link,
		network:    network,
		clockValid: clockValid,
		log:        logger.With("component", "supervisor"),
		now:        time.Now,
		ticks:      make(chan time.Time, 1),
	}
}

// Ticks feeds the relay loop. A tick the relay has not consumed yet is
// replaced rather than queued.
func (s *Supervisor) Ticks() <-chan time.Time { return s.ticks }

// Run ticks until ctx is cancelled. Health passes, starting with an initial
// one, run beside the tick loop so a slow reconnect never delays ticks.
func (s *Supervisor) Run(ctx context.Context) {
	s.checkAsync(ctx)

	tick := time.NewTicker(s.opts.TickInterval)
	defer tick.Stop()
	health := time.NewTicker(s.opts.HealthInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.tick(s.now())
		case <-health.C:
			s.checkAsync(ctx)
		}
	}
}

// checkAsync starts a health pass unless one is still in flight.
func (s *Supervisor) checkAsync(ctx context.Context) {
	if !s.checking.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.checking.Store(false)
		s.Check(ctx)
	}()
}

func (s *Supervisor) tick(now time.Time) {
	select {
	case s.ticks <- now:
		return
	default:
	}
	select {
	case <-s.ticks:
	default:
	}
	select {
	case s.ticks <- now:
	default:
	}
}

// Check restores lost connections and warns about an untrusted clock.
func (s *Supervisor) Check(ctx context.Context) Health {
	h := Health{ClockValid: true}
	h.Link = s.restore(ctx, "link", s.link)
	h.Network = s.restore(ctx, "network", s.network)

	if s.clockValid != nil {
		now := s.now()
		h.ClockValid = s.clockValid(now)
		if !h.ClockValid {
			s.log.Warn("clock outside valid window, sessions will not start", "now", now)
		}
	}
	return h
}

func (s *Supervisor) restore(ctx context.Context, name string, c Component) bool {
	if c == nil {
		return false
	}
	if c.Connected() {
		return true
	}
	if err := c.Reconnect(ctx); err != nil {
		s.log.Warn("reconnect failed", "target", name, "err", err)
		return false
	}
	s.log.Info("reconnected", "target", name)
	return c.Connected()
}
