// Command alerter consumes audit alert notifications from Kafka and posts them
// to the webhooks named in the alert configuration file.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"audittrail/internal/audit/alert"
	auditconsumer "audittrail/internal/audit/consumer"
	"audittrail/internal/platform/config"
	"audittrail/internal/platform/kafka/consumer"
	"audittrail/internal/platform/logger"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log.Format, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("alerter stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	alertCfg, err := alert.LoadConfig(cfg.AlertsConfig)
	if err != nil {
		return err
	}
	if len(alertCfg.Webhooks) == 0 {
		log.Warn("no webhooks configured, alerts will be consumed and dropped", "config", cfg.AlertsConfig)
	}

	dispatcher := alert.NewDispatcher(alertCfg.Webhooks, alert.NewSender(), log)
	router := auditconsumer.NewRouter(log, nil)
	router.Register(cfg.Kafka.AlertsTopic, auditconsumer.NewAlertHandler(dispatcher, log))

	c, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.Group, router.Topics(), router, log)
	if err != nil {
		return err
	}
	defer c.Close()

	log.Info("alerter consuming",
		"topic", cfg.Kafka.AlertsTopic,
		"group", cfg.Kafka.Group,
		"webhooks", len(alertCfg.Webhooks),
	)
	return c.Run(ctx)
}
