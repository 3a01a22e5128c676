package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/repository"
)

type WalletUseCase interface {
	Charge(ctx context.Context, ownerID string, amount int64, idempotencyKey string) (int64, error)
	Pay(ctx context.Context, ownerID string, amount int64, idempotencyKey string) (int64, error)
	Refund(ctx context.Context, ownerID string, amount int64, idempotencyKey string) (int64, error)
	BalanceOf(ctx context.Context, ownerID string) (int64, error)
	Ledger(ctx context.Context, ownerID string) ([]domain.LedgerEntry, error)
}

type Service struct {
	repo   repository.WalletRepository
	logger *slog.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(repo repository.WalletRepository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Charge credits the wallet, opening it on first use.
func (s *Service) Charge(ctx context.Context, ownerID string, amount int64, idempotencyKey string) (int64, error) {
	return s.apply(ctx, ownerID, amount, domain.LedgerReasonCharge, idempotencyKey)
}

// Pay debits the wallet. The idempotency key is mandatory: it is the only
// thing that makes a redelivered payment command safe.
func (s *Service) Pay(ctx context.Context, ownerID string, amount int64, idempotencyKey string) (int64, error) {
	if idempotencyKey == "" {
		return 0, fmt.Errorf("%w: idempotency key is required", domain.ErrInvalidInput)
	}
	return s.apply(ctx, ownerID, -amount, domain.LedgerReasonPayment, idempotencyKey)
}

func (s *Service) Refund(ctx context.Context, ownerID string, amount int64, idempotencyKey string) (int64, error) {
	if idempotencyKey == "" {
		return 0, fmt.Errorf("%w: idempotency key is required", domain.ErrInvalidInput)
	}
	return s.apply(ctx, ownerID, amount, domain.LedgerReasonRefund, idempotencyKey)
}

// BalanceOf reports zero for owners that never had a wallet.
func (s *Service) BalanceOf(ctx context.Context, ownerID string) (int64, error) {
	w, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return w.Balance, nil
}

func (s *Service) Ledger(ctx context.Context, ownerID string) ([]domain.LedgerEntry, error) {
	return s.repo.Ledger(ctx, ownerID)
}

func (s *Service) apply(ctx context.Context, ownerID string, delta int64, reason domain.LedgerReason, key string) (int64, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	if delta == 0 || (reason == domain.LedgerReasonPayment) != (delta < 0) {
		return 0, domain.ErrInvalidAmount
	}

	res, err := s.repo.Apply(ctx, domain.WalletMutation{
		OwnerID:        ownerID,
		Delta:          delta,
		Reason:         reason,
		IdempotencyKey: key,
	})
	if err != nil {
		return 0, fmt.Errorf("%s wallet %s: %w", reason, ownerID, err)
	}

	if !res.Applied {
		s.logger.Info("wallet mutation replayed", "owner_id", ownerID, "reason", reason, "idempotency_key", key)
	}
	return res.Balance, nil
}

var _ WalletUseCase = (*Service)(nil)
