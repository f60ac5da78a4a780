package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/app"
	"github.com/mahaj/bizchat/pkg/config"
	"github.com/mahaj/bizchat/pkg/notification"
)

// The notifier turns domain events published elsewhere on the platform
// into notifications and pushes them to whoever is online.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	if err := cfg.ValidateNotifier(); err != nil {
		log.Fatal("invalid notifier config", "err", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal("failed to start", "err", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := notification.NewConsumer(cfg.KafkaBrokers, cfg.NotificationTopic, a.Notifications)
	defer consumer.Close()

	log.Info("notifier consuming domain events", "topic", cfg.NotificationTopic)
	consumer.Consume(ctx)
	log.Info("notifier stopped")
}
