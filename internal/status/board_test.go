package status

import (
	"encoding/json"
	"testing"

	"treadmill-relay/internal/upload"
)

type capture struct {
	device   string
	payloads [][]byte
}

func (c *capture) Broadcast(device string, payload []byte) {
	c.device = device
	c.payloads = append(c.payloads, payload)
}

func TestBoardStartsInStandby(t *testing.T) {
	b := NewBoard("treadmill-1", nil, nil)
	snap := b.Snapshot()
	if snap.State != "STANDBY" || snap.Device != "treadmill-1" {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
}

func TestBoardUpdatePublishes(t *testing.T) {
	pub := &capture{}
	b := NewBoard("treadmill-1", pub, nil)

	b.Update(func(s *Snapshot) {
		s.State = "ACTIVE"
		s.Speed = 6.5
		s.Distance = 120
		s.Upload = upload.Stats{QueueDepth: 1}
	})

	if pub.device != "treadmill-1" || len(pub.payloads) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.payloads))
	}
	var got Snapshot
	if err := json.Unmarshal(pub.payloads[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.State != "ACTIVE" || got.Distance != 120 || got.Upload.QueueDepth != 1 {
		t.Fatalf("unexpected payload %+v", got)
	}
	if b.Snapshot().Speed != 6.5 {
		t.Fatalf("snapshot not stored")
	}
}

func TestBoardUpdateKeepsDevice(t *testing.T) {
	b := NewBoard("treadmill-1", nil, nil)
	b.Update(func(s *Snapshot) { s.Device = "other" })
	if b.Snapshot().Device != "treadmill-1" {
		t.Fatalf("device overwritten")
	}
}
