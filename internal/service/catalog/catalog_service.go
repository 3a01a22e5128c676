package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/repository"
)

type CatalogUseCase interface {
	ScheduleExists(ctx context.Context, eventID int64) (bool, error)
	SeatCount(ctx context.Context, eventID int64) (int, error)
	PriceOf(ctx context.Context, eventID int64, seatNo int) (int64, error)
}

type ScheduleCache interface {
	GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error)
	SetSchedule(ctx context.Context, s *domain.Schedule) error
}

type Service struct {
	repo   repository.CatalogRepository
	cache  ScheduleCache
	logger *slog.Logger
}

func NewService(repo repository.CatalogRepository, cache ScheduleCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

func (s *Service) ScheduleExists(ctx context.Context, eventID int64) (bool, error) {
	_, err := s.schedule(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) SeatCount(ctx context.Context, eventID int64) (int, error) {
	sch, err := s.schedule(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return sch.SeatCount, nil
}

// PriceOf returns the seat's override price, falling back to the schedule's base price.
func (s *Service) PriceOf(ctx context.Context, eventID int64, seatNo int) (int64, error) {
	sch, err := s.schedule(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if !sch.HasSeat(seatNo) {
		return 0, domain.ErrSeatNotFound
	}

	price, ok, err := s.repo.SeatPrice(ctx, eventID, seatNo)
	if err != nil {
		return 0, err
	}
	if ok {
		return price, nil
	}
	return sch.BasePrice, nil
}

func (s *Service) schedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSchedule(ctx, id)
		if err == nil && cached != nil {
			return cached, nil
		}
		if err != nil {
			s.logger.Warn("schedule cache read failed", "event_id", id, "error", err)
		}
	}

	sch, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetSchedule(ctx, sch); err != nil {
			s.logger.Warn("schedule cache write failed", "event_id", id, "error", err)
		}
	}
	return sch, nil
}

var _ CatalogUseCase = (*Service)(nil)
