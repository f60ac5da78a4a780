package main

import (
	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/config"
	"github.com/mahaj/bizchat/pkg/db"
)

// migrate prepares whichever durable backends the config selects.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}

	if cfg.StoreBackend == "scylla" {
		if err := db.CreateKeyspace(cfg.ScyllaHosts, cfg.ScyllaKeyspace); err != nil {
			log.Fatal("failed to create keyspace", "keyspace", cfg.ScyllaKeyspace, "err", err)
		}
		session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
		if err != nil {
			log.Fatal("failed to connect to scylla", "err", err)
		}
		defer session.Close()
		if err := db.Migrate(session); err != nil {
			log.Fatal("scylla migration failed", "err", err)
		}
	}

	if cfg.NotificationBackend == "postgres" {
		g, err := db.OpenPostgres(cfg.PostgresDSN(), cfg.Env == "dev")
		if err != nil {
			log.Fatal("failed to connect to postgres", "err", err)
		}
		if err := db.MigrateNotifications(g); err != nil {
			log.Fatal("postgres migration failed", "err", err)
		}
		log.Info("notifications table ready")
	}
}
