package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/app"
	"github.com/mahaj/bizchat/pkg/config"
	"golang.org/x/sync/errgroup"
)

// The gateway only holds sockets. REST traffic goes to apps/api, which
// publishes events on the bus this node consumes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	if err := cfg.ValidateGateway(); err != nil {
		log.Fatal("invalid gateway config", "err", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal("failed to start", "err", err)
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", a.WebSocket())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.GatewayPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gateway starting", "addr", srv.Addr, "bus", cfg.PushBus)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}
