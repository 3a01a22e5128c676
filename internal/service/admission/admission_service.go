package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/metrics"
	"github.com/google/uuid"
)

type AdmissionUseCase interface {
	Issue(ctx context.Context, ownerID string) (domain.AdmissionToken, error)
	Status(ctx context.Context, tokenID string) (TokenStatus, error)
	Authorize(ctx context.Context, tokenID string) (string, error)
	Expire(ctx context.Context, tokenID string) error
	PromoteNext(ctx context.Context, n int) (int, error)
}

// Store is the atomic queue backend. Every mutating call must check capacity
// and move tokens in one indivisible step.
type Store interface {
	Issue(ctx context.Context, tokenID, ownerID string) (domain.AdmissionToken, error)
	Lookup(ctx context.Context, tokenID string) (domain.AdmissionToken, error)
	IsActive(ctx context.Context, tokenID string) (bool, error)
	WaitingPosition(ctx context.Context, tokenID string) (int64, bool, error)
	ActiveCount(ctx context.Context) (int64, error)
	WaitingCount(ctx context.Context) (int64, error)
	Expire(ctx context.Context, tokenID string) (bool, error)
	PromoteOne(ctx context.Context) (string, error)
}

type TokenStatus struct {
	Token domain.AdmissionToken
	// Position is the 1-based place in the waiting line, 0 unless WAITING.
	Position int64
}

type Service struct {
	store  Store
	logger *slog.Logger
	newID  func() string
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) {
		s.newID = gen
	}
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue never fails for capacity reasons; a full active set yields a WAITING token.
func (s *Service) Issue(ctx context.Context, ownerID string) (domain.AdmissionToken, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.AdmissionToken{}, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}

	token, err := s.store.Issue(ctx, s.newID(), ownerID)
	if err != nil {
		return domain.AdmissionToken{}, err
	}

	metrics.AdmissionIssued.WithLabelValues(string(token.State)).Inc()
	s.logger.Debug("admission token issued", "token_id", token.ID, "owner_id", ownerID, "state", token.State)
	return token, nil
}

func (s *Service) Status(ctx context.Context, tokenID string) (TokenStatus, error) {
	token, err := s.store.Lookup(ctx, tokenID)
	if err != nil {
		return TokenStatus{}, err
	}

	status := TokenStatus{Token: token}
	if token.State == domain.TokenStateWaiting {
		pos, ok, err := s.store.WaitingPosition(ctx, tokenID)
		if err != nil {
			return TokenStatus{}, err
		}
		if ok {
			status.Position = pos
		}
	}
	return status, nil
}

func (s *Service) IsActive(ctx context.Context, tokenID string) (bool, error) {
	return s.store.IsActive(ctx, tokenID)
}

func (s *Service) WaitingPosition(ctx context.Context, tokenID string) (int64, bool, error) {
	return s.store.WaitingPosition(ctx, tokenID)
}

// Authorize resolves an ACTIVE token to its owner.
func (s *Service) Authorize(ctx context.Context, tokenID string) (string, error) {
	if tokenID == "" {
		return "", domain.ErrUnauthorized
	}

	token, err := s.store.Lookup(ctx, tokenID)
	if err != nil {
		return "", err
	}

	switch token.State {
	case domain.TokenStateActive:
		return token.OwnerID, nil
	case domain.TokenStateWaiting:
		return "", domain.ErrTokenNotActive
	default:
		return "", domain.ErrTokenExpired
	}
}

func (s *Service) Expire(ctx context.Context, tokenID string) error {
	removed, err := s.store.Expire(ctx, tokenID)
	if err != nil {
		return err
	}
	if removed {
		s.logger.Debug("admission token expired", "token_id", tokenID)
	}
	return nil
}

// PromoteNext moves up to n waiting tokens into free active slots. Each move
// re-checks capacity, so slots freed during the batch are used too.
func (s *Service) PromoteNext(ctx context.Context, n int) (int, error) {
	promoted := 0
	for promoted < n {
		id, err := s.store.PromoteOne(ctx)
		if err != nil {
			return promoted, err
		}
		if id == "" {
			break
		}
		promoted++
		s.logger.Debug("admission token promoted", "token_id", id)
	}

	if promoted > 0 {
		metrics.AdmissionPromoted.Add(float64(promoted))
	}
	s.refreshGauges(ctx)
	return promoted, nil
}

func (s *Service) refreshGauges(ctx context.Context) {
	if active, err := s.store.ActiveCount(ctx); err == nil {
		metrics.AdmissionQueue.WithLabelValues("active").Set(float64(active))
	}
	if waiting, err := s.store.WaitingCount(ctx); err == nil {
		metrics.AdmissionQueue.WithLabelValues("waiting").Set(float64(waiting))
	}
}

// Run promotes waiting tokens every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PromoteNext(ctx, batch)
			if err != nil {
				s.logger.Error("promote waiting tokens", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("promoted waiting tokens", "count", n)
			}
		}
	}
}

var _ AdmissionUseCase = (*Service)(nil)
