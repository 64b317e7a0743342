package ftms

import "encoding/binary"

// Encode builds a treadmill data frame carrying speed, total distance and
// elapsed time at the offsets Decode reads them from.
func Encode(speedKmh float64, distance uint32, elapsed uint16) []byte {
	frame := make([]byte, elapsedTimeEnd)
	binary.LittleEndian.PutUint16(frame[0:2], FlagTotalDistance|0x0400)
	binary.LittleEndian.PutUint16(frame[speedOffset:], uint16(speedKmh*100+0.5))
	frame[minFrameLen] = byte(distance)
	frame[minFrameLen+1] = byte(distance >> 8)
	frame[minFrameLen+2] = byte(distance >> 16)
	binary.LittleEndian.PutUint16(frame[elapsedTimeOffset:], elapsed)
	return frame
}
