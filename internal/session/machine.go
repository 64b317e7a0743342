// Package session decides when a workout starts and ends from a stream of
// treadmill readings and collects the samples of the active workout.
//
// A Machine is not safe for concurrent use. All calls must come from the
// goroutine that receives the telemetry; completed records leave it only
// through the Handoff.
package session

import (
	"log/slog"
	"time"

	"treadmill-relay/internal/ftms"

	"github.com/google/uuid"
)

type Options struct {
	MinWorkoutSpeed     float64
	NoiseFloor          float64
	StabilizationWindow time.Duration
	SettleDelay         time.Duration
	Cooldown            time.Duration
	InactivityTimeout   time.Duration
	MinDuration         time.Duration
	MaxDuration         time.Duration
	ClockValidFrom      time.Time
	ClockValidUntil     time.Time
	BufferCapacity      int
}

func DefaultOptions() Options {
	return Options{
		MinWorkoutSpeed:     1.0,
		NoiseFloor:          0.1,
		StabilizationWindow: 3 * time.Second,
		SettleDelay:         time.Second,
		Cooldown:            30 * time.Second,
		InactivityTimeout:   30 * time.Second,
		MinDuration:         time.Minute,
		MaxDuration:         24 * time.Hour,
		ClockValidFrom:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ClockValidUntil:     time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC),
		BufferCapacity:      DefaultBufferCapacity,
	}
}

// Handoff receives completed records. Submit must not block.
type Handoff interface {
	Submit(rec Record) error
}

type Machine struct {
	opts    Options
	handoff Handoff
	log     *slog.Logger
	newID   func() string

	state        State
	pendingSince time.Time
	lastActive   time.Time
	lastEnd      time.Time
	startTime    time.Time
	lastReading  time.Time

	lastElapsed uint32
	hasElapsed  bool

	integrator Integrator
	buffer     *Buffer
}

func NewMachine(opts Options, handoff Handoff, logger *slog.Logger) *Machine {
	def := DefaultOptions()
	if opts.ClockValidFrom.IsZero() {
		opts.ClockValidFrom = def.ClockValidFrom
	}
	if opts.ClockValidUntil.IsZero() {
		opts.ClockValidUntil = def.ClockValidUntil
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = def.MaxDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		opts:    opts,
		handoff: handoff,
		log:     logger.With("component", "session"),
		newID:   uuid.NewString,
		state:   Standby,
		buffer:  NewBuffer(opts.BufferCapacity),
	}
}

func (m *Machine) State() State { return m.state }

func (m *Machine) StartTime() time.Time { return m.startTime }

// PendingSince is when the current run of above-threshold readings began, or
// zero when none is pending.
func (m *Machine) PendingSince() time.Time { return m.pendingSince }

func (m *Machine) Distance() uint32 { return m.integrator.Total() }

func (m *Machine) BufferLen() int { return m.buffer.Len() }

func (m *Machine) Elapsed(now time.Time) time.Duration {
	if m.state != Active {
		return 0
	}
	return now.Sub(m.startTime)
}

// ClockValid reports whether t falls inside the trusted epoch window.
func (m *Machine) ClockValid(t time.Time) bool {
	return !t.Before(m.opts.ClockValidFrom) && t.Before(m.opts.ClockValidUntil)
}

// Process evaluates one reading received at now and returns the sample as the
// session sees it along with any lifecycle event.
func (m *Machine) Process(r ftms.Reading, now time.Time) (Sample, Event) {
	var ev Event
	switch m.state {
	case Standby:
		ev = m.evaluateStart(r, now)
	case Active:
		ev = m.evaluateActive(r, now)
	}

	sample := Sample{Speed: r.Speed, ElapsedTime: r.ElapsedTime, Timestamp: now}
	if m.state == Active {
		settled := now.Sub(m.startTime) >= m.opts.SettleDelay
		sample.Distance = m.integrator.Integrate(r.Speed, now, settled)
		if settled {
			m.buffer.Append(sample)
		}
	}

	m.lastElapsed = r.ElapsedTime
	m.hasElapsed = r.HasElapsedTime
	m.lastReading = now
	return sample, ev
}

// Tick evaluates timeouts without a reading. It ends a session whose machine
// went quiet and abandons one that has run longer than any real workout.
func (m *Machine) Tick(now time.Time) Event {
	if m.state != Active {
		return Event{}
	}
	if !m.ClockValid(now) {
		return m.discard(now, "clock outside valid window")
	}
	if now.Sub(m.startTime) > m.opts.MaxDuration {
		m.log.Warn("session stuck active", "started", m.startTime, "now", now)
		return m.end(now)
	}
	if now.Sub(m.lastActive) >= m.opts.InactivityTimeout {
		return m.end(now)
	}
	return Event{}
}

func (m *Machine) evaluateStart(r ftms.Reading, now time.Time) Event {
	if r.Speed <= m.opts.MinWorkoutSpeed {
		m.pendingSince = time.Time{}
		return Event{}
	}
	// a gap in readings is a stall, not sustained activity
	stalled := now.Sub(m.lastReading) > maxInterval
	if m.pendingSince.IsZero() || now.Before(m.pendingSince) || stalled {
		m.pendingSince = now
	}
	if now.Sub(m.pendingSince) < m.opts.StabilizationWindow {
		return Event{}
	}
	if !m.lastEnd.IsZero() && now.Sub(m.lastEnd) < m.opts.Cooldown {
		return Event{}
	}
	if !m.ClockValid(now) {
		m.log.Warn("session start deferred, clock not synchronized", "now", now)
		return Event{}
	}
	return m.start(now)
}

func (m *Machine) evaluateActive(r ftms.Reading, now time.Time) Event {
	if !m.ClockValid(now) {
		return m.discard(now, "clock outside valid window")
	}
	if m.instantActive(r) {
		m.lastActive = now
		return Event{}
	}
	if now.Sub(m.lastActive) >= m.opts.InactivityTimeout {
		return m.end(now)
	}
	return Event{}
}

// instantActive is the undebounced activity signal. A running machine timer
// with the belt moving keeps a session alive even below the start threshold.
func (m *Machine) instantActive(r ftms.Reading) bool {
	if r.Speed > m.opts.MinWorkoutSpeed {
		return true
	}
	ticking := r.HasElapsedTime && m.hasElapsed && r.ElapsedTime > m.lastElapsed
	return ticking && r.Speed > m.opts.NoiseFloor
}

func (m *Machine) start(now time.Time) Event {
	m.state = Active
	m.startTime = now
	m.lastActive = now
	m.pendingSince = time.Time{}
	m.integrator.Reset(now)
	m.buffer.Clear()
	m.log.Info("session started", "at", now)
	return Event{Kind: EventStarted}
}

func (m *Machine) end(now time.Time) Event {
	if !m.ClockValid(now) {
		return m.discard(now, "clock outside valid window")
	}
	m.lastEnd = now
	duration := now.Sub(m.startTime)
	if duration < m.opts.MinDuration || duration > m.opts.MaxDuration {
		return m.discard(now, "implausible duration "+duration.String())
	}

	rec := Record{
		ID:        m.newID(),
		StartTime: m.startTime,
		EndTime:   now,
		Distance:  m.integrator.Total(),
		Samples:   m.buffer.TakeAndClear(),
	}
	info := &RecordInfo{
		ID:        rec.ID,
		StartTime: rec.StartTime,
		EndTime:   rec.EndTime,
		Distance:  rec.Distance,
		Samples:   len(rec.Samples),
	}
	m.state = Ended
	m.log.Info("session ended", "id", info.ID, "duration", duration, "distance_m", info.Distance, "samples", info.Samples)

	accepted := true
	if m.handoff != nil {
		if err := m.handoff.Submit(rec); err != nil {
			m.log.Warn("session dropped at handoff", "id", info.ID, "err", err)
			accepted = false
		}
	}
	m.reset()
	return Event{Kind: EventEnded, Record: info, Accepted: accepted}
}

func (m *Machine) discard(now time.Time, reason string) Event {
	m.log.Warn("session discarded", "reason", reason, "started", m.startTime, "now", now, "samples", m.buffer.Len())
	m.buffer.Clear()
	m.reset()
	return Event{Kind: EventDiscarded, Reason: reason}
}

func (m *Machine) reset() {
	m.state = Standby
	m.pendingSince = time.Time{}
	m.startTime = time.Time{}
	m.lastActive = time.Time{}
}
