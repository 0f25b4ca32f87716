package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gbce/internal/config"
	"gbce/internal/instrument"
	"gbce/internal/logging"
	"gbce/internal/net"
	"gbce/internal/registry"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	closer := logging.Setup(&cfg)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Setup the TCP server over an empty registry.
	reg := registry.New(instrument.WithWindow(cfg.Metrics.Window))
	srv := net.New(
		cfg.Server.Address,
		cfg.Server.Port,
		reg,
		net.WithWorkers(cfg.Server.Workers),
		net.WithConnTimeout(cfg.Server.ConnTimeout),
	)

	// Block on running the server.
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return
	}
	log.Info().Uint64("conflicts", reg.Conflicts()).Msg("server stopped")
}
