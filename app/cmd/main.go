package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qarag/app/config"
	"qarag/app/server"
)

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Fatal(err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := server.NewServer(cfg, logger)
	if err := s.Init(ctx); err != nil {
		logger.Error("server_init_failed", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := s.Run(); err != nil {
			logger.Error("error to start server", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("received shutdown signal, shutting down server")
	s.Stop()
}
