package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/config"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Flags override env vars
	configFile := flag.String("config", "", "YAML or TOML config file")
	port := flag.String("port", "", "Admin server port")
	peer := flag.String("peer", "", "Peer websocket URL")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	if *configFile != "" {
		_ = os.Setenv("CONFIG_FILE", *configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *peer != "" {
		cfg.Bridge.PeerURL = *peer
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		// Unreachable peers are retried with backoff in the background
		srv.ConnectPeer(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
