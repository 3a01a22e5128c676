package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReservationRepository interface {
	// Insert stores a new reservation at version 1. A second live reservation
	// for the same seat fails with domain.ErrDuplicateReservation.
	Insert(ctx context.Context, r *domain.Reservation) error
	Get(ctx context.Context, id string) (*domain.Reservation, error)
	FindActiveForSeat(ctx context.Context, seat domain.SeatKey) ([]domain.Reservation, error)
	// Update persists r if the stored version still equals r.Version and
	// bumps r.Version on success. A stale version fails with domain.ErrVersionConflict.
	Update(ctx context.Context, r *domain.Reservation) error
	// ListStale returns reservations in status whose relevant timestamp is
	// older than before: temporary_held_at for TEMPORARY_ASSIGNED,
	// payment_requested_at for PAYMENT_PENDING.
	ListStale(ctx context.Context, status domain.ReservationStatus, before time.Time, limit int) ([]domain.Reservation, error)
}

type PGReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) ReservationRepository {
	return &PGReservationRepository{db: db}
}

const reservationColumns = `id, owner_id, event_id, seat_no, price, status, temporary_held_at, payment_requested_at,
	confirmed_at, payment_fail_reason, payment_key, version, created_at, updated_at`

func (r *PGReservationRepository) Insert(ctx context.Context, res *domain.Reservation) error {
	res.Version = 1
	err := r.db.QueryRow(ctx, `INSERT INTO reservations (id, owner_id, event_id, seat_no, price, status, temporary_held_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		res.ID, res.OwnerID, res.EventID, res.SeatNo, res.Price, res.Status, res.TemporaryHeldAt, res.Version).
		Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert reservation %s: %w", res.Seat(), domain.ErrDuplicateReservation)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *PGReservationRepository) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return res, nil
}

func (r *PGReservationRepository) FindActiveForSeat(ctx context.Context, seat domain.SeatKey) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE event_id=$1 AND seat_no=$2 AND status = ANY($3)`,
		seat.EventID, seat.SeatNo, statusStrings(domain.ActiveReservationStatuses))
	if err != nil {
		return nil, fmt.Errorf("find reservations for %s: %w", seat, err)
	}
	return collectReservations(rows)
}

func (r *PGReservationRepository) Update(ctx context.Context, res *domain.Reservation) error {
	var version int64
	var updatedAt time.Time
	err := r.db.QueryRow(ctx, `UPDATE reservations
		SET status=$1, payment_requested_at=$2, confirmed_at=$3, payment_fail_reason=$4, payment_key=$5,
			version=version+1, updated_at=now()
		WHERE id=$6 AND version=$7
		RETURNING version, updated_at`,
		res.Status, res.PaymentRequestedAt, res.ConfirmedAt, res.PaymentFailReason, res.PaymentKey, res.ID, res.Version).
		Scan(&version, &updatedAt)
	if err == nil {
		res.Version = version
		res.UpdatedAt = updatedAt
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update reservation %s: %w", res.ID, err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id=$1)`, res.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update reservation %s: %w", res.ID, err)
	}
	if !exists {
		return domain.ErrReservationNotFound
	}
	return fmt.Errorf("update reservation %s at version %d: %w", res.ID, res.Version, domain.ErrVersionConflict)
}

func (r *PGReservationRepository) ListStale(ctx context.Context, status domain.ReservationStatus, before time.Time, limit int) ([]domain.Reservation, error) {
	var column string
	switch status {
	case domain.ReservationStatusTemporaryAssigned:
		column = "temporary_held_at"
	case domain.ReservationStatusPaymentPending:
		column = "payment_requested_at"
	default:
		return nil, fmt.Errorf("list stale: %w: status %s has no timeout", domain.ErrInvalidInput, status)
	}

	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE status=$1 AND `+column+` < $2
		ORDER BY `+column+`
		LIMIT $3`, status, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale %s: %w", status, err)
	}
	return collectReservations(rows)
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := row.Scan(&res.ID, &res.OwnerID, &res.EventID, &res.SeatNo, &res.Price, &res.Status, &res.TemporaryHeldAt,
		&res.PaymentRequestedAt, &res.ConfirmedAt, &res.PaymentFailReason, &res.PaymentKey, &res.Version,
		&res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	return &res, nil
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	out := make([]domain.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func statusStrings(statuses []domain.ReservationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

var _ ReservationRepository = (*PGReservationRepository)(nil)
