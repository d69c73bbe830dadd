// Package main is the entry point for the user API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"userapi/config"
	"userapi/internal/app"
	"userapi/internal/logging"

	_ "userapi/cmd/userapi/docs"
)

// @title						userapi
// @version					1.0
// @description				Minimal CRUD service for users.
// @BasePath					/
func main() {
	configCheck := flag.Bool("check-config", false, "Load and validate configuration, then exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := logging.New(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if *configCheck {
		fmt.Println("configuration ok")
		os.Exit(0)
	}

	logger.Info("starting userapi", "storage_type", cfg.Storage.Type)

	application, err := app.New(context.Background(), app.Config{
		AppConfig: cfg,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := application.Start(":" + cfg.Server.Port); err != nil {
		logger.Error("server failed", "error", err)
		_ = application.Shutdown(context.Background())
		os.Exit(1)
	}
	<-done
}
