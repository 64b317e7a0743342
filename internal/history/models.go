package history

import "time"

// Workout is a delivered session as stored in workout_sessions.
type Workout struct {
	ID              string    `json:"id"`
	WorkoutStart    time.Time `json:"workout_start"`
	WorkoutEnd      time.Time `json:"workout_end"`
	DurationSeconds int64     `json:"duration_seconds"`
	TotalDistance   int64     `json:"total_distance"`
	MaxSpeed        float64   `json:"max_speed"`
	AvgSpeed        float64   `json:"avg_speed"`
	RecordsCount    int       `json:"records_count"`
	DeviceName      string    `json:"device_name"`
}

type Totals struct {
	DeviceName      string  `json:"device_name"`
	Workouts        int     `json:"workouts"`
	DistanceM       int64   `json:"distance_m"`
	DurationSec     int64   `json:"duration_sec"`
	AverageSpeedKmh float64 `json:"average_speed_kmh"`
}
