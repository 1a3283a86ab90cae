package app

import (
	"database/sql"

	"github.com/newrelic/go-agent/v3/newrelic"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"campusride/internal/config"
	"campusride/internal/mq"
	"campusride/internal/psp"
	internalRedis "campusride/internal/redis"
	"campusride/internal/repository"
	"campusride/internal/repository/postgres"
	"campusride/internal/service"
)

// Container holds the wired services shared by the server and the
// settlement command.
type Container struct {
	Rides     *service.RideService
	Requests  *service.RideRequestService
	Lifecycle *service.RideLifecycleService
	Users     *service.UserService
	Sweeper   *service.Sweeper
	Cache     *internalRedis.ResponseCache
}

// NewPaymentProcessor returns the Stripe processor when a secret key is
// configured and the in-memory sandbox otherwise.
func NewPaymentProcessor(cfg config.StripeConfig, log logrus.FieldLogger) service.PaymentProcessor {
	if cfg.SecretKey == "" {
		log.Warn("no Stripe key configured, using the payment sandbox")
		return psp.NewSandbox(log)
	}
	return psp.NewStripeProcessor(cfg.SecretKey, log)
}

// NewSMSSender connects to RabbitMQ when a URL is configured and falls back
// to logging messages. The returned close function is never nil.
func NewSMSSender(cfg config.RabbitMQConfig, log logrus.FieldLogger) (service.Sender, func(), error) {
	if cfg.URL == "" {
		log.Warn("no RabbitMQ URL configured, SMS will only be logged")
		return mq.NewLogSender(log), func() {}, nil
	}
	publisher, err := mq.Dial(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return publisher, publisher.Close, nil
}

// NewContainer wires repositories, stores and services.
func NewContainer(
	cfg *config.Config,
	db *sql.DB,
	redisClient *goredis.Client,
	nrApp *newrelic.Application,
	processor service.PaymentProcessor,
	sender service.Sender,
	log logrus.FieldLogger,
) *Container {
	policy := service.PolicyFromConfig(cfg)

	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	codeStore := internalRedis.NewCodeStore(redisClient)
	cache := internalRedis.NewResponseCache(redisClient)

	// Initialize repositories.
	repos := repository.Repositories{
		Rides:    postgres.NewRideRepository(db),
		Requests: postgres.NewRideRequestRepository(db),
		Users:    postgres.NewUserRepository(db),
	}
	payments := postgres.NewPaymentRepository(db)

	// Initialize services.
	notifier := service.NewNotificationService(repos.Users, sender, log)
	deps := service.Deps{
		Tx:       postgres.NewTransactor(db),
		Repos:    repos,
		Payments: payments,
		Escrow:   service.NewEscrow(processor, payments, policy, log),
		Notifier: notifier,
		Strikes:  service.NewStrikeLedger(repos.Users, policy),
		Policy:   policy,
		Logger:   log,
	}

	return &Container{
		Rides:     service.NewRideService(repos.Rides, repos.Users, policy),
		Requests:  service.NewRideRequestService(deps),
		Lifecycle: service.NewRideLifecycleService(deps),
		Users:     service.NewUserService(repos.Users, codeStore, notifier, cfg.Policy.PhoneCodeTTL, log),
		Sweeper:   service.NewSweeper(deps, lockStore, nrApp),
		Cache:     cache,
	}
}
