package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockledger/stockledger-backend/internal/stock/consumers"
	"github.com/stockledger/stockledger-backend/internal/stock/events"
	"github.com/stockledger/stockledger-backend/internal/stock/handler"
	"github.com/stockledger/stockledger-backend/internal/stock/repository"
	"github.com/stockledger/stockledger-backend/internal/stock/service"
	"github.com/stockledger/stockledger-backend/pkg/config"
	"github.com/stockledger/stockledger-backend/pkg/database"
	"github.com/stockledger/stockledger-backend/pkg/httputil"
	"github.com/stockledger/stockledger-backend/pkg/logger"
	"github.com/stockledger/stockledger-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Ledger Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	stockEvents := events.NewStockEventPublisher(publisher, log)

	// Repositories
	batchRepo := repository.NewBatchRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	warehouseRepo := repository.NewWarehouseRepository(db)
	productRepo := repository.NewProductRepository(db)

	// Services
	policy := service.PolicyFromConfig(&cfg.Stock)
	coordinator := service.NewCoordinator(
		db, batchRepo, movementRepo, warehouseRepo, productRepo,
		stockEvents, policy, cfg.Stock.CommitRetries, log,
	)
	calculator := service.NewCalculator(batchRepo, movementRepo, log)
	allocator := service.NewAllocator(calculator, productRepo, log)

	// Quality decisions arrive over the broker and drive batch status
	qualityConsumer, err := consumers.NewQualityConsumer(rmq, coordinator, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create quality event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := qualityConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start quality event consumer")
	}

	health := func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	}

	router := handler.NewRouter(
		log,
		health,
		handler.NewMovementHandler(coordinator, movementRepo, log),
		handler.NewPositionHandler(calculator, log),
		handler.NewAllocationHandler(allocator, log),
		handler.NewBatchHandler(coordinator, batchRepo, cfg.Stock.ExpiryWarningWindow, log),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the consumer before the HTTP server drains
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
