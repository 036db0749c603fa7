package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/runcache"
	"github.com/ricesearch/rice-eval/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP evaluation server",
		Long: `Start the HTTP server:
- POST /v1/evaluate scores runs sent in the request body
- GET /healthz reports liveness
- GET /metrics serves Prometheus metrics

Completed evaluations are published on the configured event bus.`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "HTTP server port (overrides config)")
	cmd.Flags().String("host", "", "HTTP server host (overrides config)")
	cmd.Flags().String("bus", "", "event bus type (none, memory, kafka)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("bus") {
		cfg.Bus.Type, _ = cmd.Flags().GetString("bus")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Info("Starting Rice Eval server", "version", version, "addr", cfg.Address())

	mode, err := runcache.ParseMode(cfg.Cache.Mode)
	if err != nil {
		return err
	}

	var cache runcache.Cache
	if mode != runcache.ModeOff {
		cache, err = runcache.New(cfg.Cache)
		if err != nil {
			return err
		}
		log.Info("Run cache enabled",
			"type", cfg.Cache.Type,
			"mode", cfg.Cache.Mode,
			"dir", cfg.Cache.Dir,
			"redis_url", security.MaskURL(cfg.Cache.RedisURL),
		)
	}

	eventBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		return err
	}
	log.Info("Event bus ready", "type", cfg.Bus.Type)

	srv := server.New(server.Config{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Version: version,
	}, cfg, cache, eventBus, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("Shutdown signal received")
	}

	// Stop closes the cache and bus as well
	return srv.Stop(context.Background())
}
