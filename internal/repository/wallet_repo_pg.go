package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WalletRepository interface {
	// Apply mutates the balance and appends the ledger entry in one
	// transaction. A repeated idempotency key changes nothing and reports
	// Applied=false with the current balance.
	Apply(ctx context.Context, m domain.WalletMutation) (domain.MutationResult, error)
	Get(ctx context.Context, ownerID string) (*domain.Wallet, error)
	Ledger(ctx context.Context, ownerID string) ([]domain.LedgerEntry, error)
}

type PGWalletRepository struct {
	db *pgxpool.Pool
}

func NewWalletRepository(db *pgxpool.Pool) WalletRepository {
	return &PGWalletRepository{db: db}
}

func (r *PGWalletRepository) Apply(ctx context.Context, m domain.WalletMutation) (domain.MutationResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.MutationResult{}, err
	}
	defer tx.Rollback(ctx)

	if m.Delta > 0 {
		if _, err := tx.Exec(ctx, `INSERT INTO wallets (owner_id) VALUES ($1) ON CONFLICT DO NOTHING`, m.OwnerID); err != nil {
			return domain.MutationResult{}, fmt.Errorf("open wallet %s: %w", m.OwnerID, err)
		}
	}

	// The row lock serialises every mutation of one wallet.
	var balance int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE owner_id=$1 FOR UPDATE`, m.OwnerID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MutationResult{}, domain.ErrWalletNotFound
		}
		return domain.MutationResult{}, fmt.Errorf("lock wallet %s: %w", m.OwnerID, err)
	}

	if m.IdempotencyKey != "" {
		var seen bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_ledger WHERE owner_id=$1 AND idempotency_key=$2)`,
			m.OwnerID, m.IdempotencyKey).Scan(&seen); err != nil {
			return domain.MutationResult{}, fmt.Errorf("check ledger %s: %w", m.OwnerID, err)
		}
		if seen {
			return domain.MutationResult{Balance: balance, Applied: false}, nil
		}
	}

	if balance+m.Delta < 0 {
		return domain.MutationResult{}, domain.ErrInsufficientFunds
	}

	if err := tx.QueryRow(ctx, `UPDATE wallets SET balance=balance+$2, version=version+1, updated_at=now()
		WHERE owner_id=$1 RETURNING balance`, m.OwnerID, m.Delta).Scan(&balance); err != nil {
		return domain.MutationResult{}, fmt.Errorf("update wallet %s: %w", m.OwnerID, err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO wallet_ledger (owner_id, amount, reason, idempotency_key) VALUES ($1, $2, $3, $4)`,
		m.OwnerID, m.Delta, m.Reason, nullableKey(m.IdempotencyKey)); err != nil {
		if isUniqueViolation(err) {
			return r.replayed(ctx, m.OwnerID)
		}
		return domain.MutationResult{}, fmt.Errorf("append ledger %s: %w", m.OwnerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.MutationResult{}, err
	}
	return domain.MutationResult{Balance: balance, Applied: true}, nil
}

// replayed reads the committed balance after losing a ledger insert race.
func (r *PGWalletRepository) replayed(ctx context.Context, ownerID string) (domain.MutationResult, error) {
	w, err := r.Get(ctx, ownerID)
	if err != nil {
		return domain.MutationResult{}, err
	}
	return domain.MutationResult{Balance: w.Balance, Applied: false}, nil
}

func (r *PGWalletRepository) Get(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.QueryRow(ctx, `SELECT owner_id, balance, version, updated_at FROM wallets WHERE owner_id=$1`, ownerID).
		Scan(&w.OwnerID, &w.Balance, &w.Version, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet %s: %w", ownerID, err)
	}
	return &w, nil
}

func (r *PGWalletRepository) Ledger(ctx context.Context, ownerID string) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, owner_id, amount, reason, COALESCE(idempotency_key, ''), created_at
		FROM wallet_ledger WHERE owner_id=$1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list ledger %s: %w", ownerID, err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Amount, &e.Reason, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

var _ WalletRepository = (*PGWalletRepository)(nil)
