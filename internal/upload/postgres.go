package upload

import (
	"context"
	"time"

	"treadmill-relay/internal/db"

	"github.com/gofiber/fiber/v2"
)

// PostgresSender writes summaries straight into the backend's table when the
// relay has database access instead of the REST endpoint.
type PostgresSender struct {
	db db.Querier
}

func NewPostgresSender(q db.Querier) *PostgresSender {
	return &PostgresSender{db: q}
}

func (s *PostgresSender) Send(ctx context.Context, summary Summary) (int, error) {
	if s.db == nil {
		return StatusNotConnected, errNoDatabase
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO workout_sessions (id, workout_start, workout_end, duration_seconds, total_distance, max_speed, avg_speed, records_count, device_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`, summary.ID, time.Time(summary.WorkoutStart).UTC(), time.Time(summary.WorkoutEnd).UTC(),
		summary.DurationSeconds, int64(summary.TotalDistance), float64(summary.MaxSpeed), float64(summary.AvgSpeed),
		summary.RecordsCount, summary.DeviceName)
	if err != nil {
		return classify(err), err
	}
	return fiber.StatusCreated, nil
}
