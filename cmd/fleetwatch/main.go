package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetwatch/fleetwatch/internal/api"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/notify"
	"github.com/fleetwatch/fleetwatch/internal/runner"
	"github.com/fleetwatch/fleetwatch/internal/source"
	"github.com/fleetwatch/fleetwatch/internal/state"
	"github.com/fleetwatch/fleetwatch/internal/stream"
	"github.com/fleetwatch/fleetwatch/internal/translog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("fleetwatch starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"interval", cfg.Poll.Interval,
		"sources", len(cfg.Poll.Sources),
		"transition_log", cfg.Poll.TransitionLog,
		"http_port", cfg.HTTP.Port,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clients := buildClients(cfg.Poll.Sources)
	if len(clients) == 0 {
		slog.Warn("no usable sources configured — poller will idle")
	}

	st := state.New(state.DefaultMaxRecent)
	log := translog.New(cfg.Poll.TransitionLog)

	var pubs []runner.Publisher

	// WebSocket hub — pushes transition batches to connected clients.
	hub := stream.New(st)
	go hub.Run(ctx)
	pubs = append(pubs, hub)

	if len(cfg.Notify.Webhooks) > 0 {
		pubs = append(pubs, notify.New(cfg.Notify.Webhooks))
	}

	// Optional HTTP server: REST status API + WebSocket stream.
	if cfg.HTTP.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/api/", api.New(st, cfg.HTTP.Auth))
		mux.Handle("/ws/stream", hub)

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler: mux,
		}
		go func() {
			slog.Info("HTTP server listening", "port", cfg.HTTP.Port)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
		defer httpSrv.Shutdown(context.Background()) //nolint:errcheck
	}

	run := runner.New(cfg.Poll.Interval, clients, log, st, pubs...)

	// Watch config file for hot-reload of the source set.
	// Interval, log path and HTTP settings require a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			rebuilt := buildClients(updated.Poll.Sources)
			run.UpdateSources(rebuilt)
			slog.Info("config hot-reloaded", "sources", len(rebuilt))
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	run.Run(ctx)
	slog.Info("fleetwatch shutting down")
}

// buildClients constructs a poll client per source, skipping sources whose
// client cannot be built so one bad entry does not take the fleet down.
func buildClients(sources []config.Source) []source.Client {
	var clients []source.Client
	for _, src := range sources {
		c, err := source.New(src)
		if err != nil {
			slog.Error("skipping source — could not build client",
				"source", src.ID, "err", err)
			continue
		}
		clients = append(clients, c)
		slog.Info("registered source", "id", src.ID, "type", src.Type)
	}
	return clients
}
