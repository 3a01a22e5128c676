package seathold

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/metrics"
)

// Store is a conditional-write backend for seat holds. TryAcquire must read
// and write in one atomic step, and every read must treat expired holds as absent.
type Store interface {
	TryAcquire(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error)
	IsHeldBy(ctx context.Context, seat domain.SeatKey, holderID string) (bool, error)
	Release(ctx context.Context, seat domain.SeatKey) error
	ReleaseIfHeldBy(ctx context.Context, seat domain.SeatKey, holderID string, acquiredBy time.Time) (bool, error)
	Status(ctx context.Context, seat domain.SeatKey) (*domain.SeatHold, error)
	StatusBulk(ctx context.Context, seats []domain.SeatKey) (map[domain.SeatKey]domain.SeatHold, error)
}

// Sweeper is implemented by stores that keep expired rows until someone deletes them.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type Manager struct {
	store  Store
	logger *slog.Logger
}

type ManagerOption func(*Manager)

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TryAcquire fails fast: false means someone holds the seat, including the caller.
func (m *Manager) TryAcquire(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error) {
	if err := validate(seat, holderID); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidInput)
	}

	ok, err := m.store.TryAcquire(ctx, seat, holderID, ttl)
	switch {
	case err != nil:
		metrics.SeatHoldAcquire.WithLabelValues("error").Inc()
		return false, err
	case ok:
		metrics.SeatHoldAcquire.WithLabelValues("acquired").Inc()
	default:
		metrics.SeatHoldAcquire.WithLabelValues("contended").Inc()
	}
	return ok, nil
}

func (m *Manager) Extend(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error) {
	if err := validate(seat, holderID); err != nil {
		return false, err
	}
	return m.store.Extend(ctx, seat, holderID, ttl)
}

func (m *Manager) IsHeldBy(ctx context.Context, seat domain.SeatKey, holderID string) (bool, error) {
	return m.store.IsHeldBy(ctx, seat, holderID)
}

// Release is unconditional by key. Callers confirm ownership first.
func (m *Manager) Release(ctx context.Context, seat domain.SeatKey) error {
	return m.store.Release(ctx, seat)
}

// ReleaseIfHeldBy removes the hold only when holderID owns it and took it at
// or before acquiredBy. It reports whether a hold was removed.
func (m *Manager) ReleaseIfHeldBy(ctx context.Context, seat domain.SeatKey, holderID string, acquiredBy time.Time) (bool, error) {
	if err := validate(seat, holderID); err != nil {
		return false, err
	}
	return m.store.ReleaseIfHeldBy(ctx, seat, holderID, acquiredBy)
}

func (m *Manager) Status(ctx context.Context, seat domain.SeatKey) (*domain.SeatHold, error) {
	return m.store.Status(ctx, seat)
}

func (m *Manager) StatusBulk(ctx context.Context, seats []domain.SeatKey) (map[domain.SeatKey]domain.SeatHold, error) {
	return m.store.StatusBulk(ctx, seats)
}

// EventStatus reports live holds for seats 1..seatCount of one event.
func (m *Manager) EventStatus(ctx context.Context, eventID int64, seatCount int) (map[domain.SeatKey]domain.SeatHold, error) {
	seats := make([]domain.SeatKey, 0, seatCount)
	for n := 1; n <= seatCount; n++ {
		seats = append(seats, domain.SeatKey{EventID: eventID, SeatNo: n})
	}
	return m.store.StatusBulk(ctx, seats)
}

// Sweep deletes expired rows when the backend keeps them. Correctness never depends on it.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	sweeper, ok := m.store.(Sweeper)
	if !ok {
		return 0, nil
	}

	start := time.Now()
	n, err := sweeper.SweepExpired(ctx)
	metrics.SweepDuration.WithLabelValues("seat_holds").Observe(time.Since(start).Seconds())
	return n, err
}

func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if _, ok := m.store.(Sweeper); !ok {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Error("sweep seat holds", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Info("swept expired seat holds", "count", n)
			}
		}
	}
}

func validate(seat domain.SeatKey, holderID string) error {
	if seat.EventID <= 0 || seat.SeatNo <= 0 {
		return fmt.Errorf("%w: seat %s", domain.ErrInvalidInput, seat)
	}
	if holderID == "" {
		return fmt.Errorf("%w: holder id is required", domain.ErrInvalidInput)
	}
	return nil
}
