package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"ciclogo/client/internal/app"
	"ciclogo/client/internal/config"
	"ciclogo/client/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	appDir, err := config.DetectAppDir()
	if err != nil {
		return fmt.Errorf("determine app directory: %w", err)
	}
	defaultConfig := config.DefaultPath(appDir)
	configPath := flag.String("config", defaultConfig, "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath, appDir)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info().Str("config", *configPath).Msg("CicloGo client starting")
	logger.Debug().Str("api", cfg.APIBaseURL).Str("data_file", cfg.DataFile).Msg("configuration loaded")

	return startApp(ctx, cfg, logger)
}

func startApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := application.Run(); err != nil {
		return err
	}
	logger.Info().Msg("state machine launched, entering UI loop")
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown requested")
			application.Stop()
		case <-application.Done():
			logger.Info().Msg("application requested shutdown")
		}
		close(done)
	}()
	application.RunUILoop()
	logger.Info().Msg("UI loop exited, stopping application")
	application.Stop()
	<-done
	return nil
}
