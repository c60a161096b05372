// Package main provides the liveops server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/glebarez/sqlite"
	"github.com/golang/glog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/playforge/liveops/pkg/server"
)

func main() {
	var (
		listenAddr    string
		configPath    string
		databaseType  string
		databaseDSN   string
		publisherRoot string
		watchConfig   bool
	)

	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&databaseType, "db-type", "", "Database type (sqlite, postgres, or mysql; overrides config)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string (overrides config)")
	flag.StringVar(&publisherRoot, "publisher-root", "", "Directory for published bundle artifacts (overrides config)")
	flag.BoolVar(&watchConfig, "watch-config", false, "Reload the config file on change")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := server.DefaultConfig()
	if configPath != "" {
		loaded, err := server.LoadConfig(configPath)
		if err != nil {
			glog.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	// Flags win over file values.
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if databaseType != "" {
		cfg.Database.Type = databaseType
	}
	if databaseDSN != "" {
		cfg.Database.DSN = databaseDSN
	}
	if publisherRoot != "" {
		cfg.Publisher.Root = publisherRoot
	}
	if err := cfg.Validate(); err != nil {
		glog.Fatalf("Invalid config: %v", err)
	}

	gormDB, err := openDatabase(cfg.Database)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	var serverOpts []server.ServerOption
	switch cfg.Auth.Mode {
	case "jwt":
		extractor, err := server.NewJWTActorExtractor(cfg.Auth.JWT, logger)
		if err != nil {
			glog.Fatalf("Failed to set up JWT auth: %v", err)
		}
		serverOpts = append(serverOpts, server.WithActorExtractor(extractor))
		logger.Info("using JWT auth",
			"principalClaim", cfg.Auth.JWT.PrincipalClaim,
			"hasPublicKey", cfg.Auth.JWT.PublicKeyPath != "")
	case "header", "":
		logger.Info("using header-based auth (X-User-Principal)")
	}

	srv := server.NewServer(cfg, gormDB, logger, serverOpts...)
	if err := srv.Init(); err != nil {
		glog.Fatalf("Failed to initialize server: %v", err)
	}
	srv.MountRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if watchConfig && configPath != "" {
		go func() {
			// Reloads are validated and logged; listen and database changes
			// still require a restart.
			err := server.WatchConfig(ctx, configPath, logger, func(next *server.Config) {
				if next.Listen != cfg.Listen || next.Database != cfg.Database {
					logger.Warn("listen or database changed, restart required to apply")
				}
			})
			if err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	logger.Info("liveops server ready",
		"listen", cfg.Listen,
		"database", cfg.Database.Type,
		"publisherRoot", cfg.Publisher.Root,
	)

	if err := srv.Start(ctx); err != nil {
		glog.Fatalf("HTTP server error: %v", err)
	}

	logger.Info("liveops server stopped")
}

func openDatabase(cfg server.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	switch cfg.Type {
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}
