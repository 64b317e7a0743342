package link

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"treadmill-relay/internal/ftms"
)

// Phase holds the belt at Speed km/h for Duration.
type Phase struct {
	Speed    float64
	Duration time.Duration
}

// DefaultProfile is a short walk-run-walk workout followed by idle time long
// enough to close the session.
var DefaultProfile = []Phase{
	{Speed: 0, Duration: 5 * time.Second},
	{Speed: 4.5, Duration: 30 * time.Second},
	{Speed: 9.0, Duration: 60 * time.Second},
	{Speed: 4.5, Duration: 30 * time.Second},
	{Speed: 0, Duration: 45 * time.Second},
}

// Simulator emits frames for a scripted speed profile, looping forever. It
// stands in for a treadmill during bench testing.
type Simulator struct {
	*outbox

	profile  []Phase
	interval time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	connected atomic.Bool
}

func NewSimulator(profile []Phase, interval time.Duration) *Simulator {
	if len(profile) == 0 {
		profile = DefaultProfile
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Simulator{outbox: newOutbox(), profile: profile, interval: interval}
}

func (s *Simulator) Frames() <-chan []byte { return s.frames }

func (s *Simulator) Connected() bool { return s.connected.Load() }

// Reconnect starts emitting. The emitter outlives ctx and stops on Disconnect.
func (s *Simulator) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.connected.Store(true)
	go s.run(ctx)
	return nil
}

func (s *Simulator) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.connected.Store(false)
}

func (s *Simulator) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var (
		phase   int
		inPhase time.Duration
		meters  float64
		elapsed uint16
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p := s.profile[phase]
		meters += p.Speed / 3.6 * s.interval.Seconds()
		if p.Speed > 0 {
			elapsed++
		}
		s.deliver(ftms.Encode(p.Speed, uint32(meters), elapsed))

		inPhase += s.interval
		if inPhase >= p.Duration {
			inPhase = 0
			phase = (phase + 1) % len(s.profile)
			if phase == 0 {
				meters, elapsed = 0, 0
			}
		}
	}
}
