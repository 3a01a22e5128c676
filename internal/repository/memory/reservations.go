// Package memory holds in-process repositories with the same atomicity
// contracts as the PostgreSQL ones. Each method runs under one mutex, which
// stands in for the row locks and unique indexes of the database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/repository"
)

type Reservations struct {
	mu   sync.Mutex
	rows map[string]domain.Reservation
	now  func() time.Time
}

func NewReservations() *Reservations {
	return &Reservations{rows: make(map[string]domain.Reservation), now: time.Now}
}

func (m *Reservations) Insert(_ context.Context, r *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[r.ID]; ok {
		return fmt.Errorf("insert reservation %s: duplicate id", r.ID)
	}
	for _, existing := range m.rows {
		if existing.Seat() == r.Seat() && existing.Status.OccupiesSeat() {
			return fmt.Errorf("insert reservation %s: %w", r.Seat(), domain.ErrDuplicateReservation)
		}
	}

	now := m.now()
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	m.rows[r.ID] = *r
	return nil
}

func (m *Reservations) Get(_ context.Context, id string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return &r, nil
}

func (m *Reservations) FindActiveForSeat(_ context.Context, seat domain.SeatKey) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Reservation, 0)
	for _, r := range m.rows {
		if r.Seat() == seat && r.Status.OccupiesSeat() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Reservations) Update(_ context.Context, r *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rows[r.ID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if stored.Version != r.Version {
		return fmt.Errorf("update reservation %s at version %d: %w", r.ID, r.Version, domain.ErrVersionConflict)
	}

	r.Version++
	r.UpdatedAt = m.now()
	m.rows[r.ID] = *r
	return nil
}

func (m *Reservations) ListStale(_ context.Context, status domain.ReservationStatus, before time.Time, limit int) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamp := func(r domain.Reservation) (time.Time, bool) {
		switch status {
		case domain.ReservationStatusTemporaryAssigned:
			return r.TemporaryHeldAt, true
		case domain.ReservationStatusPaymentPending:
			if r.PaymentRequestedAt == nil {
				return time.Time{}, false
			}
			return *r.PaymentRequestedAt, true
		}
		return time.Time{}, false
	}

	out := make([]domain.Reservation, 0)
	for _, r := range m.rows {
		if r.Status != status {
			continue
		}
		if ts, ok := stamp(r); ok && ts.Before(before) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := stamp(out[i])
		b, _ := stamp(out[j])
		return a.Before(b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns a snapshot ordered by creation time.
func (m *Reservations) All() []domain.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Reservation, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var _ repository.ReservationRepository = (*Reservations)(nil)
