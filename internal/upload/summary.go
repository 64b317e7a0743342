package upload

import (
	"math"
	"strconv"
	"time"

	"treadmill-relay/internal/session"
)

// TimestampLayout is ISO-8601 with the offset always spelled out.
const TimestampLayout = "2006-01-02T15:04:05+00:00"

// Timestamp encodes as TimestampLayout in UTC.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(TimestampLayout)+2)
	buf = append(buf, '"')
	buf = time.Time(t).UTC().AppendFormat(buf, TimestampLayout)
	return append(buf, '"'), nil
}

// Speed encodes with exactly one decimal.
type Speed float64

func (s Speed) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(s), 'f', 1, 64), nil
}

// Summary is the per-session payload sent to the backend. Per-sample data is
// never uploaded.
type Summary struct {
	ID              string    `json:"-"`
	WorkoutStart    Timestamp `json:"workout_start"`
	WorkoutEnd      Timestamp `json:"workout_end"`
	DurationSeconds int64     `json:"duration_seconds"`
	TotalDistance   uint32    `json:"total_distance"`
	MaxSpeed        Speed     `json:"max_speed"`
	AvgSpeed        Speed     `json:"avg_speed"`
	RecordsCount    int       `json:"records_count"`
	DeviceName      string    `json:"device_name"`
}

// Summarize reduces rec to a Summary. Speeds at or below noiseFloor are left
// out of max and mean.
func Summarize(rec session.Record, deviceName string, noiseFloor float64) Summary {
	var maxSpeed, total float64
	var moving int
	for _, s := range rec.Samples {
		if s.Speed <= noiseFloor {
			continue
		}
		if s.Speed > maxSpeed {
			maxSpeed = s.Speed
		}
		total += s.Speed
		moving++
	}
	avg := 0.0
	if moving > 0 {
		avg = total / float64(moving)
	}

	return Summary{
		ID:              rec.ID,
		WorkoutStart:    Timestamp(rec.StartTime),
		WorkoutEnd:      Timestamp(rec.EndTime),
		DurationSeconds: int64(rec.Duration() / time.Second),
		TotalDistance:   rec.Distance,
		MaxSpeed:        Speed(round1(maxSpeed)),
		AvgSpeed:        Speed(round1(avg)),
		RecordsCount:    len(rec.Samples),
		DeviceName:      deviceName,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
