package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Domenick1991/seatrush/config"
	"github.com/Domenick1991/seatrush/internal/bootstrap"
	"github.com/Domenick1991/seatrush/internal/kafka"
	"github.com/Domenick1991/seatrush/internal/notify"
	"github.com/Domenick1991/seatrush/internal/service/payment"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := bootstrap.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.OpenInfra(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open infrastructure: %v", err)
	}
	defer infra.Close()

	if err := infra.Producer.CheckConnection(ctx); err != nil {
		logger.Warn("kafka not reachable yet", "brokers", cfg.Kafka.Brokers, "error", err)
	}

	services, err := bootstrap.NewServices(cfg, infra, logger)
	if err != nil {
		log.Fatalf("wire services: %v", err)
	}
	defer services.Close()

	consumerOpts := []kafka.ConsumerOption{
		kafka.WithConsumerLogger(logger),
		kafka.WithBackoff(cfg.Kafka.RetryMinBackoff, cfg.Kafka.RetryMaxBackoff),
	}

	processor := payment.NewProcessor(services.Wallet, infra.Producer, cfg.Kafka.PaymentResultsTopic,
		payment.WithProcessorLogger(logger))
	applier := payment.NewResultApplier(services.Reservations, logger)
	sender := notify.NewSender(logger)

	var wg sync.WaitGroup
	spawn := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("worker started", "worker", name)
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker stopped", "worker", name, "error", err)
				stop()
				return
			}
			logger.Info("worker stopped", "worker", name)
		}()
	}

	consume := func(groupID, topic string, handler kafka.Handler) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, groupID, topic, consumerOpts...)
			defer consumer.Close()
			return consumer.Consume(ctx, handler)
		}
	}

	spawn("payment-commands", consume(cfg.Kafka.PaymentGroupID, cfg.Kafka.PaymentCommandsTopic, processor.HandleCommand))
	spawn("payment-results", consume(cfg.Kafka.ResultGroupID, cfg.Kafka.PaymentResultsTopic, applier.HandleResult))

	switch cfg.Notifications.Driver {
	case config.NotifyDriverKafka:
		spawn("notifications", consume(cfg.Kafka.NotificationGroupID, cfg.Kafka.NotificationsTopic, sender.Handle))
	case config.NotifyDriverRabbitMQ:
		spawn("notifications", func(ctx context.Context) error {
			return sender.ConsumeRabbit(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		})
	}

	spawn("reservation-sweeper", func(ctx context.Context) error {
		services.Reservations.RunSweeper(ctx, cfg.Reservation.SweepInterval)
		return nil
	})
	spawn("seat-hold-sweeper", func(ctx context.Context) error {
		services.SeatHolds.RunSweeper(ctx, cfg.SeatHold.SweepInterval)
		return nil
	})
	spawn("admission-promoter", func(ctx context.Context) error {
		services.Admission.Run(ctx, cfg.Admission.PromoteInterval, cfg.Admission.PromoteBatch)
		return nil
	})

	<-ctx.Done()
	logger.Info("shutdown requested, waiting for workers")
	wg.Wait()
}
