package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReservation(id string, seatNo int) *domain.Reservation {
	return &domain.Reservation{
		ID:              id,
		OwnerID:         "owner-" + id,
		EventID:         1,
		SeatNo:          seatNo,
		Price:           80000,
		Status:          domain.ReservationStatusTemporaryAssigned,
		TemporaryHeldAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestReservations_RejectsSecondLiveReservationForSeat(t *testing.T) {
	repo := NewReservations()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newReservation("r1", 5)))

	err := repo.Insert(ctx, newReservation("r2", 5))

	assert.ErrorIs(t, err, domain.ErrDuplicateReservation)
}

func TestReservations_TerminalReservationFreesSeat(t *testing.T) {
	repo := NewReservations()
	ctx := context.Background()

	first := newReservation("r1", 5)
	require.NoError(t, repo.Insert(ctx, first))
	require.NoError(t, first.Cancel())
	require.NoError(t, repo.Update(ctx, first))

	assert.NoError(t, repo.Insert(ctx, newReservation("r2", 5)))
}

func TestReservations_UpdateChecksVersion(t *testing.T) {
	repo := NewReservations()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newReservation("r1", 1)))

	a, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	b, err := repo.Get(ctx, "r1")
	require.NoError(t, err)

	require.NoError(t, a.Cancel())
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	require.NoError(t, b.Expire("hold timeout"))
	err = repo.Update(ctx, b)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	stored, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, stored.Status)
}

func TestReservations_ListStale(t *testing.T) {
	repo := NewReservations()
	ctx := context.Background()

	old := newReservation("old", 1)
	fresh := newReservation("fresh", 2)
	fresh.TemporaryHeldAt = old.TemporaryHeldAt.Add(10 * time.Minute)
	require.NoError(t, repo.Insert(ctx, old))
	require.NoError(t, repo.Insert(ctx, fresh))

	stale, err := repo.ListStale(ctx, domain.ReservationStatusTemporaryAssigned, old.TemporaryHeldAt.Add(5*time.Minute), 10)

	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
}

func TestWallets_ReplayIsNoop(t *testing.T) {
	repo := NewWallets()
	ctx := context.Background()

	res, err := repo.Apply(ctx, domain.WalletMutation{OwnerID: "a", Delta: 100, Reason: domain.LedgerReasonCharge, IdempotencyKey: "c1"})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = repo.Apply(ctx, domain.WalletMutation{OwnerID: "a", Delta: 100, Reason: domain.LedgerReasonCharge, IdempotencyKey: "c1"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, int64(100), res.Balance)

	entries, err := repo.Ledger(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWallets_DebitWithoutWallet(t *testing.T) {
	repo := NewWallets()

	_, err := repo.Apply(context.Background(), domain.WalletMutation{OwnerID: "ghost", Delta: -1, IdempotencyKey: "p"})

	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestSeatHolds_ExpiryAndSweep(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	holds := NewSeatHolds(func() time.Time { return now })
	ctx := context.Background()
	seat := domain.SeatKey{EventID: 1, SeatNo: 1}

	ok, err := holds.TryAcquire(ctx, seat, "a", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = holds.TryAcquire(ctx, seat, "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(150 * time.Millisecond)

	h, err := holds.Status(ctx, seat)
	require.NoError(t, err)
	assert.Nil(t, h)

	n, err := holds.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSeatHolds_ReleaseIfHeldBy(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	holds := NewSeatHolds(func() time.Time { return now })
	ctx := context.Background()
	seat := domain.SeatKey{EventID: 1, SeatNo: 1}

	_, err := holds.TryAcquire(ctx, seat, "a", time.Minute)
	require.NoError(t, err)

	released, err := holds.ReleaseIfHeldBy(ctx, seat, "b", now)
	require.NoError(t, err)
	assert.False(t, released, "other holder")

	released, err = holds.ReleaseIfHeldBy(ctx, seat, "a", now.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, released, "hold is newer than the bound")

	released, err = holds.ReleaseIfHeldBy(ctx, seat, "a", now)
	require.NoError(t, err)
	assert.True(t, released)

	h, err := holds.Status(ctx, seat)
	require.NoError(t, err)
	assert.Nil(t, h)
}
