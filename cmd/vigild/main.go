// vigild is the vigil observability daemon: it ingests logs and metrics
// over HTTP, evaluates alert rules, and periodically snapshots its state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/vigil/internal/config"
	"github.com/xtxerr/vigil/internal/logging"
	"github.com/xtxerr/vigil/internal/server"
	"github.com/xtxerr/vigil/internal/service"
)

const version = "0.3.0"

func main() {
	var (
		configPath  = flag.String("config", "vigil.yaml", "path to configuration file")
		listen      = flag.String("listen", "", "listen address (overrides config)")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("vigild %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vigild: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "vigild: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	log := logging.With("component", "main", "version", version)
	log.Info("vigild starting", "listen", cfg.Listen,
		"snapshots", cfg.Snapshot.Enabled)

	svc := service.New(cfg)
	svc.Restore()

	// Drain the notification queue. Delivery to real channels (email,
	// webhooks) lives outside the core; the daemon logs each fire.
	go func() {
		for n := range svc.Notifications() {
			log.Info("alert notification",
				"rule", n.Event.RuleName,
				"severity", n.Event.Severity.String(),
				"source", n.Event.TriggeringSource,
				"channels", n.Channels)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return server.New(svc, cfg).ListenAndServe(ctx, cfg.Listen) })

	if err := g.Wait(); err != nil {
		log.Error("vigild failed", "error", err)
		svc.Close()
		os.Exit(1)
	}

	if err := svc.Close(); err != nil {
		log.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
	log.Info("vigild stopped")
}
