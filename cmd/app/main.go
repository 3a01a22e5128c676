package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/seatrush/api"
	"github.com/Domenick1991/seatrush/config"
	"github.com/Domenick1991/seatrush/internal/bootstrap"
	"github.com/gin-gonic/gin"
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

	services, err := bootstrap.NewServices(cfg, infra, logger)
	if err != nil {
		log.Fatalf("wire services: %v", err)
	}
	defer services.Close()

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Handlers{
		Queue:        api.NewQueueHandler(services.Admission),
		Events:       api.NewEventHandler(services.Catalog, services.SeatHolds),
		Reservations: api.NewReservationHandler(services.Reservations),
		Wallets:      api.NewWalletHandler(services.Wallet),
	})

	if err := bootstrap.Run(ctx, cfg.HTTP, router, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
