// cmd/diet-opt/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mcp-diet-opt/internal/config"
	"mcp-diet-opt/internal/logging"
	"mcp-diet-opt/internal/optimizer"
	"mcp-diet-opt/internal/server"
)

const appVersion = "1.0.0"

var (
	configPath = flag.String("config", "config.yaml", "Path to YAML config (optional)")
	port       = flag.Int("port", 8012, "Port for HTTP transport")
	host       = flag.String("host", "0.0.0.0", "Host address")
	address    = flag.String("address", "", "Address (alias for host)")
	dbPath     = flag.String("db-path", "/data/diet-opt.db", "Database path")
	version    = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("mcp-diet-opt version " + appVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, appVersion)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Explicit flags win over the config file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "host":
			cfg.Host = *host
		case "db-path":
			cfg.DBPath = *dbPath
		}
	})
	if *address != "" {
		cfg.Host = *address
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	data, err := server.LoadData(cfg.Data, logger)
	if err != nil {
		logger.Fatal("Failed to load data", zap.Error(err))
	}

	srv, err := server.NewDietServer(&server.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		DBPath: cfg.DBPath,
		Optimizer: optimizer.Options{
			Penalty:   cfg.Optimizer.Penalty,
			Tolerance: cfg.Optimizer.Tolerance,
		},
	}, data, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		logger.Error("Server error", zap.Error(err))
	}

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
}
