package app

import (
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"campusride/internal/config"
)

// NewNewRelic starts the New Relic agent. It returns nil when the agent is
// disabled or fails to start; every caller accepts a nil application.
func NewNewRelic(cfg config.NewRelicConfig, log logrus.FieldLogger) *newrelic.Application {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil
	}

	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		log.WithError(err).Warn("failed to initialize New Relic")
		return nil
	}

	log.WithField("app", cfg.AppName).Info("New Relic enabled")
	return nrApp
}
