package history

import (
	"context"
	"errors"

	"treadmill-relay/internal/db"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("workout not found")

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

func (s *Service) List(ctx context.Context, device string, limit int) ([]Workout, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, workout_start, workout_end, duration_seconds, total_distance, max_speed, avg_speed, records_count, device_name
		FROM workout_sessions WHERE device_name=$1
		ORDER BY workout_start DESC
		LIMIT $2
	`, device, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workouts := []Workout{}
	for rows.Next() {
		var w Workout
		if err := rows.Scan(&w.ID, &w.WorkoutStart, &w.WorkoutEnd, &w.DurationSeconds, &w.TotalDistance, &w.MaxSpeed, &w.AvgSpeed, &w.RecordsCount, &w.DeviceName); err != nil {
			return nil, err
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

func (s *Service) Get(ctx context.Context, id string) (Workout, error) {
	var w Workout
	row := s.db.QueryRow(ctx, `
		SELECT id, workout_start, workout_end, duration_seconds, total_distance, max_speed, avg_speed, records_count, device_name
		FROM workout_sessions WHERE id=$1
	`, id)
	if err := row.Scan(&w.ID, &w.WorkoutStart, &w.WorkoutEnd, &w.DurationSeconds, &w.TotalDistance, &w.MaxSpeed, &w.AvgSpeed, &w.RecordsCount, &w.DeviceName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Workout{}, ErrNotFound
		}
		return Workout{}, err
	}
	return w, nil
}

func (s *Service) Totals(ctx context.Context, device string) (Totals, error) {
	t := Totals{DeviceName: device}
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_distance),0), COALESCE(SUM(duration_seconds),0)
		FROM workout_sessions WHERE device_name=$1
	`, device)
	if err := row.Scan(&t.Workouts, &t.DistanceM, &t.DurationSec); err != nil {
		return Totals{}, err
	}
	if t.DurationSec > 0 {
		t.AverageSpeedKmh = float64(t.DistanceM) / float64(t.DurationSec) * 3.6
	}
	return t, nil
}
