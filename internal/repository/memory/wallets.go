package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/repository"
)

type ledgerKey struct {
	owner string
	key   string
}

type Wallets struct {
	mu      sync.Mutex
	wallets map[string]*domain.Wallet
	ledger  []domain.LedgerEntry
	keys    map[ledgerKey]struct{}
	now     func() time.Time
}

func NewWallets() *Wallets {
	return &Wallets{
		wallets: make(map[string]*domain.Wallet),
		keys:    make(map[ledgerKey]struct{}),
		now:     time.Now,
	}
}

func (m *Wallets) Apply(_ context.Context, mut domain.WalletMutation) (domain.MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[mut.OwnerID]
	if !ok {
		if mut.Delta <= 0 {
			return domain.MutationResult{}, domain.ErrWalletNotFound
		}
		w = &domain.Wallet{OwnerID: mut.OwnerID}
		m.wallets[mut.OwnerID] = w
	}

	k := ledgerKey{owner: mut.OwnerID, key: mut.IdempotencyKey}
	if mut.IdempotencyKey != "" {
		if _, seen := m.keys[k]; seen {
			return domain.MutationResult{Balance: w.Balance, Applied: false}, nil
		}
	}

	if w.Balance+mut.Delta < 0 {
		return domain.MutationResult{}, domain.ErrInsufficientFunds
	}

	now := m.now()
	w.Balance += mut.Delta
	w.Version++
	w.UpdatedAt = now
	m.ledger = append(m.ledger, domain.LedgerEntry{
		ID:             int64(len(m.ledger) + 1),
		OwnerID:        mut.OwnerID,
		Amount:         mut.Delta,
		Reason:         mut.Reason,
		IdempotencyKey: mut.IdempotencyKey,
		CreatedAt:      now,
	})
	if mut.IdempotencyKey != "" {
		m.keys[k] = struct{}{}
	}
	return domain.MutationResult{Balance: w.Balance, Applied: true}, nil
}

func (m *Wallets) Get(_ context.Context, ownerID string) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[ownerID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *Wallets) Ledger(_ context.Context, ownerID string) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.LedgerEntry, 0)
	for _, e := range m.ledger {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ repository.WalletRepository = (*Wallets)(nil)
