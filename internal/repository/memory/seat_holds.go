package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
)

type SeatHolds struct {
	mu    sync.Mutex
	holds map[domain.SeatKey]domain.SeatHold
	now   func() time.Time
}

func NewSeatHolds(now func() time.Time) *SeatHolds {
	if now == nil {
		now = time.Now
	}
	return &SeatHolds{holds: make(map[domain.SeatKey]domain.SeatHold), now: now}
}

func (m *SeatHolds) TryAcquire(_ context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.holds[seat]; ok && cur.Live(now) {
		return false, nil
	}
	m.holds[seat] = domain.SeatHold{
		EventID:   seat.EventID,
		SeatNo:    seat.SeatNo,
		HolderID:  holderID,
		HeldAt:    now,
		ExpiresAt: now.Add(ttl),
	}
	return true, nil
}

func (m *SeatHolds) Extend(_ context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cur, ok := m.holds[seat]
	if !ok || !cur.Live(now) || cur.HolderID != holderID {
		return false, nil
	}
	cur.ExpiresAt = now.Add(ttl)
	m.holds[seat] = cur
	return true, nil
}

func (m *SeatHolds) IsHeldBy(ctx context.Context, seat domain.SeatKey, holderID string) (bool, error) {
	h, err := m.Status(ctx, seat)
	if err != nil {
		return false, err
	}
	return h != nil && h.HolderID == holderID, nil
}

func (m *SeatHolds) Release(_ context.Context, seat domain.SeatKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.holds, seat)
	return nil
}

func (m *SeatHolds) ReleaseIfHeldBy(_ context.Context, seat domain.SeatKey, holderID string, acquiredBy time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.holds[seat]
	if !ok || cur.HolderID != holderID || cur.HeldAt.After(acquiredBy) {
		return false, nil
	}
	delete(m.holds, seat)
	return true, nil
}

func (m *SeatHolds) Status(_ context.Context, seat domain.SeatKey) (*domain.SeatHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.holds[seat]
	if !ok || !cur.Live(m.now()) {
		return nil, nil
	}
	return &cur, nil
}

func (m *SeatHolds) StatusBulk(_ context.Context, seats []domain.SeatKey) (map[domain.SeatKey]domain.SeatHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make(map[domain.SeatKey]domain.SeatHold, len(seats))
	for _, s := range seats {
		if cur, ok := m.holds[s]; ok && cur.Live(now) {
			out[s] = cur
		}
	}
	return out, nil
}

func (m *SeatHolds) SweepExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for k, h := range m.holds {
		if !h.Live(now) {
			delete(m.holds, k)
			n++
		}
	}
	return n, nil
}
