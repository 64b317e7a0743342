package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"treadmill-relay/internal/ftms"
	"treadmill-relay/internal/session"
	"treadmill-relay/internal/status"
	"treadmill-relay/internal/upload"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type handoff struct {
	mu      sync.Mutex
	records []session.Record
}

func (h *handoff) Submit(rec session.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *handoff) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

type capture struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *capture) Broadcast(_ string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
}

func (c *capture) last(t *testing.T) status.Snapshot {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.payloads) == 0 {
		t.Fatalf("nothing published")
	}
	var s status.Snapshot
	if err := json.Unmarshal(c.payloads[len(c.payloads)-1], &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return s
}

type connected bool

func (c connected) Connected() bool { return bool(c) }

type stats struct{}

func (stats) Stats() upload.Stats { return upload.Stats{QueueDepth: 2, Uploaded: 7} }

func newRelay(h session.Handoff, pub status.Publisher) (*Relay, *time.Time) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := session.NewMachine(session.DefaultOptions(), h, logger)
	board := status.NewBoard("treadmill-1", pub, logger)
	r := New(ftms.Decoder{}, m, board, Deps{
		Link:    connected(true),
		Network: connected(false),
		Uploads: stats{},
		Memory:  func() uint64 { return 4096 },
	}, logger)
	clock := t0
	r.now = func() time.Time { return clock }
	return r, &clock
}

func TestRelayRunsWorkoutToHandoff(t *testing.T) {
	h := &handoff{}
	pub := &capture{}
	r, clock := newRelay(h, pub)

	var elapsed uint16
	var started bool
	for sec := 0; sec < 90; sec++ {
		*clock = t0.Add(time.Duration(sec) * time.Second)
		elapsed++
		if ev := r.HandleFrame(ftms.Encode(6.0, uint32(sec*2), elapsed)); ev.Kind == session.EventStarted {
			started = true
		}
	}
	if !started {
		t.Fatalf("session never started")
	}
	snap := pub.last(t)
	if snap.State != "ACTIVE" || snap.Distance == 0 || snap.Speed != 6.0 {
		t.Fatalf("unexpected active snapshot %+v", snap)
	}
	if !snap.LinkConnected || snap.NetworkConnected || snap.Upload.Uploaded != 7 || snap.FreeMemory != 4096 {
		t.Fatalf("health fields not populated %+v", snap)
	}

	for sec := 90; sec < 125; sec++ {
		*clock = t0.Add(time.Duration(sec) * time.Second)
		r.HandleFrame(ftms.Encode(0, 180, elapsed))
	}
	if h.count() != 1 {
		t.Fatalf("expected one record handed off, got %d", h.count())
	}
	snap = pub.last(t)
	if snap.State != "STANDBY" || snap.LastEvent != "ended" {
		t.Fatalf("unexpected final snapshot %+v", snap)
	}
}

func TestRelayReportsUnboundedMemoryAsZero(t *testing.T) {
	pub := &capture{}
	r, _ := newRelay(&handoff{}, pub)
	r.deps.Memory = upload.HeapHeadroom(0)

	r.HandleFrame(ftms.Encode(0.5, 0, 0))
	snap := pub.last(t)
	if snap.FreeMemory != 0 || !snap.MemoryUnlimited {
		t.Fatalf("expected unbounded headroom reported as unlimited, got %+v", snap)
	}
}

func TestRelayDropsMalformedFrames(t *testing.T) {
	pub := &capture{}
	r, _ := newRelay(&handoff{}, pub)
	r.HandleFrame([]byte{0x00})
	if r.Malformed() != 1 {
		t.Fatalf("expected malformed frame counted")
	}
	if len(pub.payloads) != 0 {
		t.Fatalf("malformed frame published a snapshot")
	}
}

func TestRelayTickEndsSilentSession(t *testing.T) {
	h := &handoff{}
	r, clock := newRelay(h, &capture{})
	for sec := 0; sec < 70; sec++ {
		*clock = t0.Add(time.Duration(sec) * time.Second)
		r.HandleFrame(ftms.Encode(5.0, 0, 0))
	}

	if ev := r.HandleTick(t0.Add(80 * time.Second)); ev.Kind != session.EventNone {
		t.Fatalf("ended before inactivity timeout: %v", ev.Kind)
	}
	ev := r.HandleTick(t0.Add(100 * time.Second))
	if ev.Kind != session.EventEnded || h.count() != 1 {
		t.Fatalf("expected tick to end the session, got %v", ev.Kind)
	}
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	r, _ := newRelay(&handoff{}, nil)
	frames := make(chan []byte)
	ticks := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, frames, ticks)
		close(done)
	}()

	frames <- ftms.Encode(2.0, 0, 0)
	ticks <- t0
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("relay did not stop")
	}
}
