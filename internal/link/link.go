// Package link owns the connection to the treadmill and delivers raw FTMS
// notification frames.
package link

import (
	"context"
	"sync/atomic"
)

// Source is a treadmill connection. Frames stays open across reconnects.
type Source interface {
	Frames() <-chan []byte
	Connected() bool
	Reconnect(ctx context.Context) error
	Disconnect()
}

const frameBuffer = 32

// outbox is the non-blocking frame handoff shared by every source. The
// notification callback must never stall the radio stack.
type outbox struct {
	frames  chan []byte
	dropped atomic.Int64
}

func newOutbox() *outbox {
	return &outbox{frames: make(chan []byte, frameBuffer)}
}

func (o *outbox) deliver(buf []byte) {
	frame := make([]byte, len(buf))
	copy(frame, buf)
	select {
	case o.frames <- frame:
	default:
		o.dropped.Add(1)
	}
}

// Dropped counts frames lost because the consumer fell behind.
func (o *outbox) Dropped() int64 { return o.dropped.Load() }
