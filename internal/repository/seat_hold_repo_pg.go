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

// PGSeatHoldRepository keeps seat holds in a table keyed by (event_id, seat_no).
// Rows past expires_at are ignored by every read and removed by SweepExpired.
type PGSeatHoldRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewSeatHoldRepository(db *pgxpool.Pool, now func() time.Time) *PGSeatHoldRepository {
	if now == nil {
		now = time.Now
	}
	return &PGSeatHoldRepository{db: db, now: now}
}

// TryAcquire deletes an expired hold and inserts the new one in a single
// transaction. A unique violation means a concurrent acquirer interleaved;
// the attempt is repeated once and then reported as a lost race.
func (r *PGSeatHoldRepository) TryAcquire(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		err := r.acquireOnce(ctx, seat, holderID, ttl)
		if err == nil {
			return true, nil
		}
		if !isUniqueViolation(err) {
			return false, fmt.Errorf("acquire hold %s: %w", seat, err)
		}
	}
	return false, nil
}

func (r *PGSeatHoldRepository) acquireOnce(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) error {
	now := r.now()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM seat_holds WHERE event_id=$1 AND seat_no=$2 AND expires_at <= $3`,
		seat.EventID, seat.SeatNo, now); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO seat_holds (event_id, seat_no, holder_id, held_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		seat.EventID, seat.SeatNo, holderID, now, now.Add(ttl)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGSeatHoldRepository) Extend(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error) {
	now := r.now()
	tag, err := r.db.Exec(ctx, `UPDATE seat_holds SET expires_at=$4
		WHERE event_id=$1 AND seat_no=$2 AND holder_id=$3 AND expires_at > $5`,
		seat.EventID, seat.SeatNo, holderID, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("extend hold %s: %w", seat, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PGSeatHoldRepository) IsHeldBy(ctx context.Context, seat domain.SeatKey, holderID string) (bool, error) {
	hold, err := r.Status(ctx, seat)
	if err != nil {
		return false, err
	}
	return hold != nil && hold.HolderID == holderID, nil
}

func (r *PGSeatHoldRepository) Release(ctx context.Context, seat domain.SeatKey) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM seat_holds WHERE event_id=$1 AND seat_no=$2`, seat.EventID, seat.SeatNo); err != nil {
		return fmt.Errorf("release hold %s: %w", seat, err)
	}
	return nil
}

func (r *PGSeatHoldRepository) ReleaseIfHeldBy(ctx context.Context, seat domain.SeatKey, holderID string, acquiredBy time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM seat_holds
		WHERE event_id=$1 AND seat_no=$2 AND holder_id=$3 AND held_at <= $4`,
		seat.EventID, seat.SeatNo, holderID, acquiredBy)
	if err != nil {
		return false, fmt.Errorf("release hold %s: %w", seat, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PGSeatHoldRepository) Status(ctx context.Context, seat domain.SeatKey) (*domain.SeatHold, error) {
	hold := domain.SeatHold{EventID: seat.EventID, SeatNo: seat.SeatNo}
	err := r.db.QueryRow(ctx, `SELECT holder_id, held_at, expires_at FROM seat_holds
		WHERE event_id=$1 AND seat_no=$2 AND expires_at > $3`, seat.EventID, seat.SeatNo, r.now()).
		Scan(&hold.HolderID, &hold.HeldAt, &hold.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get hold %s: %w", seat, err)
	}
	return &hold, nil
}

func (r *PGSeatHoldRepository) StatusBulk(ctx context.Context, seats []domain.SeatKey) (map[domain.SeatKey]domain.SeatHold, error) {
	out := make(map[domain.SeatKey]domain.SeatHold, len(seats))
	if len(seats) == 0 {
		return out, nil
	}

	eventIDs := make([]int64, len(seats))
	seatNos := make([]int32, len(seats))
	for i, s := range seats {
		eventIDs[i] = s.EventID
		seatNos[i] = int32(s.SeatNo)
	}

	rows, err := r.db.Query(ctx, `SELECT h.event_id, h.seat_no, h.holder_id, h.held_at, h.expires_at
		FROM seat_holds h
		JOIN unnest($1::bigint[], $2::int[]) AS k(event_id, seat_no) USING (event_id, seat_no)
		WHERE h.expires_at > $3`, eventIDs, seatNos, r.now())
	if err != nil {
		return nil, fmt.Errorf("bulk get holds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.SeatHold
		if err := rows.Scan(&h.EventID, &h.SeatNo, &h.HolderID, &h.HeldAt, &h.ExpiresAt); err != nil {
			return nil, err
		}
		out[h.Key()] = h
	}
	return out, rows.Err()
}

// SweepExpired is storage hygiene only; reads never depend on it.
func (r *PGSeatHoldRepository) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM seat_holds WHERE expires_at < $1`, r.now())
	if err != nil {
		return 0, fmt.Errorf("sweep holds: %w", err)
	}
	return tag.RowsAffected(), nil
}
