// Package relay runs the single goroutine that owns session state: it decodes
// treadmill frames, drives the state machine and keeps the status board
// current.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"treadmill-relay/internal/ftms"
	"treadmill-relay/internal/session"
	"treadmill-relay/internal/status"
	"treadmill-relay/internal/upload"
)

// Deps are health inputs read when building a snapshot. Any of them may be nil.
type Deps struct {
	Link    interface{ Connected() bool }
	Network interface{ Connected() bool }
	Uploads interface{ Stats() upload.Stats }
	Memory  upload.MemoryProbe
}

type Relay struct {
	decoder ftms.Decoder
	machine *session.Machine
	board   *status.Board
	deps    Deps
	log     *slog.Logger
	now     func() time.Time

	lastSpeed float64
	malformed int64
}

func New(decoder ftms.Decoder, machine *session.Machine, board *status.Board, deps Deps, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		decoder: decoder,
		machine: machine,
		board:   board,
		deps:    deps,
		log:     logger.With("component", "relay"),
		now:     time.Now,
	}
}

// Run consumes frames and supervisor ticks until ctx is cancelled. It is the
// only caller of the machine.
func (r *Relay) Run(ctx context.Context, frames <-chan []byte, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-frames:
			r.HandleFrame(frame)
		case now := <-ticks:
			r.HandleTick(now)
		}
	}
}

func (r *Relay) HandleFrame(frame []byte) session.Event {
	now := r.now()
	reading, err := r.decoder.Decode(frame, now)
	if err != nil {
		r.malformed++
		if errors.Is(err, ftms.ErrTooShort) {
			r.log.Debug("frame dropped", "len", len(frame), "err", err)
		}
		return session.Event{}
	}

	_, ev := r.machine.Process(reading, now)
	r.lastSpeed = reading.Speed
	r.publish(now, ev)
	return ev
}

func (r *Relay) HandleTick(now time.Time) session.Event {
	ev := r.machine.Tick(now)
	r.publish(now, ev)
	return ev
}

// Malformed counts frames the decoder rejected.
func (r *Relay) Malformed() int64 { return r.malformed }

func (r *Relay) publish(now time.Time, ev session.Event) {
	if r.board == nil {
		return
	}
	m := r.machine
	r.board.Update(func(s *status.Snapshot) {
		s.State = m.State().String()
		s.Speed = r.lastSpeed
		s.Distance = m.Distance()
		s.ElapsedSeconds = int64(m.Elapsed(now) / time.Second)
		s.Samples = m.BufferLen()
		s.ClockValid = m.ClockValid(now)
		s.UpdatedAt = now
		if ev.Kind != session.EventNone {
			s.LastEvent = ev.Kind.String()
		}
		if r.deps.Link != nil {
			s.LinkConnected = r.deps.Link.Connected()
		}
		if r.deps.Network != nil {
			s.NetworkConnected = r.deps.Network.Connected()
		}
		if r.deps.Uploads != nil {
			s.Upload = r.deps.Uploads.Stats()
		}
		if r.deps.Memory != nil {
			free := r.deps.Memory()
			s.MemoryUnlimited = free == upload.Unlimited
			if s.MemoryUnlimited {
				free = 0
			}
			s.FreeMemory = free
		}
	})
}
