package session

import "time"

type State int

const (
	Standby State = iota
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Standby:
		return "STANDBY"
	case Active:
		return "ACTIVE"
	case Ended:
		return "ENDED"
	}
	return "UNKNOWN"
}

// Sample is one accepted reading of the active session. Distance is the
// integrated session distance at the time of the sample, not the machine's
// own counter.
type Sample struct {
	Speed       float64   `json:"speed"`
	ElapsedTime uint32    `json:"elapsed_time"`
	Distance    uint32    `json:"distance"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s Sample) sameReading(o Sample) bool {
	return s.Speed == o.Speed && s.Distance == o.Distance && s.ElapsedTime == o.ElapsedTime
}

// Record is a completed session. Once handed off it belongs to the receiver.
type Record struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	Distance  uint32
	Samples   []Sample
}

func (r Record) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

type EventKind int

const (
	EventNone EventKind = iota
	EventStarted
	EventEnded
	EventDiscarded
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventDiscarded:
		return "discarded"
	}
	return "none"
}

// RecordInfo describes a handed-off record. The samples themselves belong to
// the handoff receiver.
type RecordInfo struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	Distance  uint32
	Samples   int
}

// Event reports a lifecycle transition produced by a single evaluation.
// Record is set for EventEnded; Reason is set for EventDiscarded.
type Event struct {
	Kind     EventKind
	Record   *RecordInfo
	Reason   string
	Accepted bool
}
