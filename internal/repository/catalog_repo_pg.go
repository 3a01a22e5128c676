package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository is the read-only view of schedules and seat prices.
type CatalogRepository interface {
	GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error)
	// SeatPrice returns the per-seat override, ok=false when the base price applies.
	SeatPrice(ctx context.Context, scheduleID int64, seatNo int) (price int64, ok bool, err error)
}

type PGCatalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) CatalogRepository {
	return &PGCatalogRepository{db: db}
}

func (r *PGCatalogRepository) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	row := r.db.QueryRow(ctx, `SELECT id, title, starts_at, seat_count, base_price, created_at, updated_at FROM schedules WHERE id=$1`, id)
	var s domain.Schedule
	if err := row.Scan(&s.ID, &s.Title, &s.StartsAt, &s.SeatCount, &s.BasePrice, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get schedule %d: %w", id, err)
	}
	return &s, nil
}

func (r *PGCatalogRepository) SeatPrice(ctx context.Context, scheduleID int64, seatNo int) (int64, bool, error) {
	var price int64
	err := r.db.QueryRow(ctx, `SELECT price FROM seat_prices WHERE schedule_id=$1 AND seat_no=$2`, scheduleID, seatNo).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get seat price %d:%d: %w", scheduleID, seatNo, err)
	}
	return price, true, nil
}

var _ CatalogRepository = (*PGCatalogRepository)(nil)
