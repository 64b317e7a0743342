// Package status keeps the latest relay snapshot for the HTTP and websocket
// surfaces.
package status

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"treadmill-relay/internal/upload"
)

// Snapshot is the live view of the relay.
type Snapshot struct {
	Device           string       `json:"device"`
	State            string       `json:"state"`
	Speed            float64      `json:"speed"`
	Distance         uint32       `json:"distance"`
	ElapsedSeconds   int64        `json:"elapsed_seconds"`
	Samples          int          `json:"samples"`
	LinkConnected    bool         `json:"link_connected"`
	NetworkConnected bool         `json:"network_connected"`
	ClockValid       bool         `json:"clock_valid"`
	FreeMemory       uint64       `json:"free_memory"`
	MemoryUnlimited  bool         `json:"memory_unlimited,omitempty"`
	LastEvent        string       `json:"last_event,omitempty"`
	Upload           upload.Stats `json:"upload"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Publisher fans a serialized snapshot out to live viewers.
type Publisher interface {
	Broadcast(device string, payload []byte)
}

type Board struct {
	device    string
	publisher Publisher
	log       *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

func NewBoard(device string, publisher Publisher, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		device:    device,
		publisher: publisher,
		log:       logger.With("component", "status"),
		snap:      Snapshot{Device: device, State: "STANDBY"},
	}
}

func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// Update applies fn to a copy of the current snapshot, stores it and
// publishes the result.
func (b *Board) Update(fn func(*Snapshot)) Snapshot {
	b.mu.Lock()
	next := b.snap
	fn(&next)
	next.Device = b.device
	b.snap = next
	b.mu.Unlock()

	if b.publisher != nil {
		payload, err := json.Marshal(next)
		if err != nil {
			b.log.Error("encode snapshot", "err", err)
			return next
		}
		b.publisher.Broadcast(b.device, payload)
	}
	return next
}
