package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusride/internal/app"
	"campusride/internal/config"
	"campusride/internal/handler"
	"campusride/internal/logger"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	log := logger.New(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	nrApp := app.NewNewRelic(cfg.NewRelic, log)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	log.Info("connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info("connected to Redis")

	sender, closeSender, err := app.NewSMSSender(cfg.RabbitMQ, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer closeSender()

	// Wire dependencies.
	c := app.NewContainer(cfg, db, redisClient, nrApp, app.NewPaymentProcessor(cfg.Stripe, log), sender, log)

	router := app.NewRouter(app.RouterDeps{
		RideHandler:        handler.NewRideHandler(c.Rides, c.Lifecycle),
		RideRequestHandler: handler.NewRideRequestHandler(c.Requests),
		UserHandler:        handler.NewUserHandler(c.Users),
		SettlementHandler:  handler.NewSettlementHandler(c.Sweeper),
		Cache:              c.Cache,
		Auth:               cfg.Auth,
		Logger:             log,
		NewRelicApp:        nrApp,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Run the settlement sweeper until shutdown.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		c.Sweeper.Run(sweepCtx, cfg.Policy.SweepInterval)
	}()

	// Start server in goroutine.
	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	stopSweeper()
	<-sweeperDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server exited")
}
