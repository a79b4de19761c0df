package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/syncboard/syncboard/pkg/app"
	"github.com/syncboard/syncboard/pkg/config"
	"github.com/syncboard/syncboard/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file (optional, env overrides apply)")
		logLevel   = flag.String("log-level", "", "override log level (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	container, err := app.NewContainer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialize: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.InfoCF("main", "Shutting down", map[string]interface{}{
		"signal": s.String(),
	})

	container.Stop()
}
