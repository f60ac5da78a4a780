package main

import (
	"flag"

	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/config"
	"github.com/mahaj/bizchat/pkg/db"
)

func main() {
	force := flag.Bool("force", false, "required outside the dev environment")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	if cfg.Env != "dev" && !*force {
		log.Fatal("refusing to drop tables outside dev without -force", "env", cfg.Env)
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatal("failed to connect to scylla", "err", err)
	}
	defer session.Close()

	if err := db.Drop(session); err != nil {
		log.Fatal("failed to drop tables", "err", err)
	}
	log.Info("conversation tables dropped", "keyspace", cfg.ScyllaKeyspace)
}
