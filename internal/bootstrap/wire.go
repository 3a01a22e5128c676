package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/seatrush/config"
	"github.com/Domenick1991/seatrush/internal/cache"
	"github.com/Domenick1991/seatrush/internal/kafka"
	"github.com/Domenick1991/seatrush/internal/notify"
	"github.com/Domenick1991/seatrush/internal/repository"
	"github.com/Domenick1991/seatrush/internal/service/admission"
	"github.com/Domenick1991/seatrush/internal/service/catalog"
	"github.com/Domenick1991/seatrush/internal/service/reservation"
	"github.com/Domenick1991/seatrush/internal/service/seathold"
	"github.com/Domenick1991/seatrush/internal/service/wallet"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Infra holds the shared connections of one process.
type Infra struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Producer *kafka.Producer
}

func OpenInfra(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Infra, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	rdb := cache.NewClient(cfg.Redis)
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, kafka.WithProducerLogger(logger))

	return &Infra{Pool: pool, Redis: rdb, Producer: producer}, nil
}

func (i *Infra) Close() {
	if err := i.Producer.Close(); err != nil {
		slog.Error("close kafka producer", "error", err)
	}
	if err := i.Redis.Close(); err != nil {
		slog.Error("close redis", "error", err)
	}
	i.Pool.Close()
}

// Services is the core wired against Infra.
type Services struct {
	Admission    *admission.Service
	SeatHolds    *seathold.Manager
	Catalog      *catalog.Service
	Wallet       *wallet.Service
	Reservations *reservation.Service

	closers []func() error
}

func NewServices(cfg *config.Config, infra *Infra, logger *slog.Logger) (*Services, error) {
	admissionSvc := admission.NewService(
		cache.NewAdmissionStore(infra.Redis, cache.AdmissionStoreConfig{
			Capacity:  cfg.Admission.Capacity,
			TokenTTL:  cfg.Admission.TokenTTL,
			ActiveTTL: cfg.Admission.ActiveTTL,
		}),
		admission.WithLogger(logger),
	)

	holds := seathold.NewManager(newSeatHoldStore(cfg.SeatHold, infra), seathold.WithLogger(logger))

	catalogSvc := catalog.NewService(
		repository.NewCatalogRepository(infra.Pool),
		cache.NewScheduleCache(infra.Redis, cfg.Catalog.CacheTTL),
		logger,
	)

	walletSvc := wallet.NewService(repository.NewWalletRepository(infra.Pool), wallet.WithLogger(logger))

	sink, closer, err := newSink(cfg, infra, logger)
	if err != nil {
		return nil, err
	}

	reservations := reservation.NewService(
		repository.NewReservationRepository(infra.Pool),
		admissionSvc,
		holds,
		catalogSvc,
		infra.Producer,
		cfg.Kafka.PaymentCommandsTopic,
		cfg.Reservation.HoldTTL,
		cfg.Reservation.PaymentTimeout,
		reservation.WithEventSink(sink),
		reservation.WithRefunder(walletSvc),
		reservation.WithSweepBatch(cfg.Reservation.SweepBatch),
		reservation.WithLogger(logger),
	)

	s := &Services{
		Admission:    admissionSvc,
		SeatHolds:    holds,
		Catalog:      catalogSvc,
		Wallet:       walletSvc,
		Reservations: reservations,
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	return s, nil
}

func (s *Services) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Error("close service dependency", "error", err)
		}
	}
}

func newSeatHoldStore(cfg config.SeatHoldConfig, infra *Infra) seathold.Store {
	if cfg.Backend == config.SeatHoldBackendPostgres {
		return repository.NewSeatHoldRepository(infra.Pool, nil)
	}
	return cache.NewSeatHoldStore(infra.Redis)
}

func newSink(cfg *config.Config, infra *Infra, logger *slog.Logger) (reservation.EventSink, func() error, error) {
	switch cfg.Notifications.Driver {
	case config.NotifyDriverRabbitMQ:
		sink, err := notify.NewRabbitSink(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return nil, nil, err
		}
		return sink, sink.Close, nil
	case config.NotifyDriverNone:
		return notify.Nop{Logger: logger}, nil, nil
	default:
		return notify.NewKafkaSink(infra.Producer, cfg.Kafka.NotificationsTopic), nil, nil
	}
}
