package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/mailer"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
)

// The notifier worker consumes reservation events, appends them to the
// booking log and, with SMTP configured, e-mails the customer.
func main() {
	_ = godotenv.Load()
	cfg := config.LoadNotifier()

	log, err := logger.New(logger.IsDev(cfg.Env))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cons := &queue.Consumer{URL: cfg.RabbitMQURL, LogDir: cfg.LogDir, Log: log}
	if cfg.SMTP.Enabled() {
		cons.Mailer = mailer.New(cfg.SMTP, log)
	} else {
		log.Warn("SMTP not configured, e-mails are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	log.Info("notifier started", zap.String("log_dir", cfg.LogDir))
	if err := cons.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", zap.Error(err))
	}
	log.Info("notifier stopped")
}
