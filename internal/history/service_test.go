package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

var columns = []string{"id", "workout_start", "workout_end", "duration_seconds", "total_distance", "max_speed", "avg_speed", "records_count", "device_name"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestListClampsLimit(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, workout_start, workout_end`).
		WithArgs("treadmill-1", MaxLimit).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("id-1", start, start.Add(30*time.Minute), int64(1800), int64(4200), 9.5, 8.4, 200, "treadmill-1"))

	workouts, err := NewService(mock).List(context.Background(), "treadmill-1", 10000)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(workouts) != 1 || workouts[0].TotalDistance != 4200 {
		t.Fatalf("unexpected workouts %+v", workouts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListDefaultLimitAndError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM workout_sessions`).
		WithArgs("treadmill-1", DefaultLimit).
		WillReturnError(errors.New("db down"))

	if _, err := NewService(mock).List(context.Background(), "treadmill-1", 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGetNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM workout_sessions WHERE id=\$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := NewService(mock).Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTotals(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(SUM\(total_distance\),0\)`).
		WithArgs("treadmill-1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "distance", "duration"}).AddRow(3, int64(3000), int64(1200)))

	totals, err := NewService(mock).Totals(context.Background(), "treadmill-1")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Workouts != 3 || totals.DistanceM != 3000 || totals.AverageSpeedKmh != 9 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}
