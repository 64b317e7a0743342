// Package ftms decodes Fitness Machine Service treadmill data notifications.
package ftms

import (
	"encoding/binary"
	"errors"
	"time"
)

// Flag bits of the treadmill data characteristic.
const (
	FlagAverageSpeed  uint16 = 0x0002
	FlagTotalDistance uint16 = 0x0004
	FlagElapsedTime   uint16 = 0x0C00
)

const (
	speedOffset       = 2
	minFrameLen       = speedOffset + 2
	elapsedTimeOffset = 16
	elapsedTimeEnd    = elapsedTimeOffset + 2

	// DefaultSpeedCeiling is the sanity ceiling in km/h; faster readings are
	// decode glitches.
	DefaultSpeedCeiling = 40.0
)

var ErrTooShort = errors.New("ftms: frame too short")

// Reading is one decoded treadmill notification. Speed is km/h, RawDistance
// meters as reported by the machine, ElapsedTime seconds on the machine's own
// timer.
type Reading struct {
	Speed          float64
	ElapsedTime    uint32
	RawDistance    uint32
	HasElapsedTime bool
	HasDistance    bool
	Timestamp      time.Time
}

// Decoder turns raw frames into readings. The zero value uses
// DefaultSpeedCeiling.
type Decoder struct {
	SpeedCeiling float64
}

// Decode parses frame. Optional fields that do not fit in the frame are left
// at zero; bytes past the last known field are ignored.
func (d Decoder) Decode(frame []byte, at time.Time) (Reading, error) {
	if len(frame) < minFrameLen {
		return Reading{}, ErrTooShort
	}

	flags := binary.LittleEndian.Uint16(frame[0:2])
	r := Reading{Timestamp: at}

	r.Speed = float64(binary.LittleEndian.Uint16(frame[speedOffset:])) / 100.0
	ceiling := d.SpeedCeiling
	if ceiling <= 0 {
		ceiling = DefaultSpeedCeiling
	}
	if r.Speed > ceiling {
		r.Speed = 0
	}

	offset := minFrameLen
	if flags&FlagAverageSpeed != 0 {
		offset += 2
	}
	if flags&FlagTotalDistance != 0 && len(frame) >= offset+3 {
		r.RawDistance = uint32(frame[offset]) | uint32(frame[offset+1])<<8 | uint32(frame[offset+2])<<16
		r.HasDistance = true
	}

	if flags&FlagElapsedTime != 0 && len(frame) >= elapsedTimeEnd {
		r.ElapsedTime = uint32(binary.LittleEndian.Uint16(frame[elapsedTimeOffset:elapsedTimeEnd]))
		r.HasElapsedTime = true
	}

	return r, nil
}

// Decode uses the zero Decoder.
func Decode(frame []byte, at time.Time) (Reading, error) {
	return Decoder{}.Decode(frame, at)
}
