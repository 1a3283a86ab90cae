// Command settle runs one settlement sweep and exits. It is meant for cron
// jobs and manual recovery after an outage.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"campusride/internal/app"
	"campusride/internal/config"
	"campusride/internal/logger"
	"campusride/internal/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	log := logger.New(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	nrApp := app.NewNewRelic(cfg.NewRelic, log)
	if nrApp != nil {
		defer nrApp.Shutdown(10 * time.Second)
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.WithError(err).Error("failed to connect to database")
		return 1
	}
	defer db.Close()

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.WithError(err).Error("failed to connect to redis")
		return 1
	}
	defer redisClient.Close()

	sender, closeSender, err := app.NewSMSSender(cfg.RabbitMQ, log)
	if err != nil {
		log.WithError(err).Error("failed to connect to RabbitMQ")
		return 1
	}
	defer closeSender()

	c := app.NewContainer(cfg, db, redisClient, nrApp, app.NewPaymentProcessor(cfg.Stripe, log), sender, log)

	report, err := c.Sweeper.Sweep(ctx)
	if err != nil {
		log.WithError(err).Error("settlement sweep failed")
		return 1
	}
	if report.Locked {
		log.Warn("another instance is sweeping, nothing done")
		return 0
	}

	log.WithFields(logrus.Fields{
		"items":          len(report.Items),
		"captured":       report.Count(service.SweepCaptured),
		"capture_failed": report.Count(service.SweepCaptureFailed),
		"expired":        report.Count(service.SweepExpired),
		"released":       report.Count(service.SweepReleased),
		"failures":       report.Failures(),
	}).Info("settlement sweep done")

	if report.Failures() > 0 {
		return 2
	}
	return 0
}
