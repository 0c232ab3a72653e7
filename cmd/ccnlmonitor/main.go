package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"CCNLMonitor/internal/app"
	"CCNLMonitor/internal/config"
	"CCNLMonitor/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single monitoring cycle and exit")
	flag.Parse()

	// .env is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}

	if *once {
		result := application.RunOnce(ctx)
		logger.Info("cycle finished",
			"items", result.Total,
			"successful", result.Successful,
			"failed", result.Failed,
		)
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
