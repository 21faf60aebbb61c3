package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wsx4588588/canlog-frontend/internal/api"
	"github.com/wsx4588588/canlog-frontend/internal/config"
	"github.com/wsx4588588/canlog-frontend/internal/database"
	"github.com/wsx4588588/canlog-frontend/internal/logger"
	"github.com/wsx4588588/canlog-frontend/internal/server"
	"github.com/wsx4588588/canlog-frontend/internal/upload"
)

func main() {
	configPath := flag.String("config", config.GetConfigPath(), "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	level := cfg.Log.Level
	if cfg.Server.Debug && level == "" {
		level = "debug"
	}
	logr, err := logger.New(cfg.Log.Mode, level)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logr.Sync()

	// Initialize upload journal
	db, err := database.NewSQLiteDB(cfg.Database.Path, logr)
	if err != nil {
		logr.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	client, err := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, logr)
	if err != nil {
		logr.Fatal("Failed to create API client", zap.Error(err))
	}

	srv := server.New(client, db, server.Options{
		StaticDir:      cfg.Server.StaticDir,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PageSize:       cfg.Query.PageSize,
		Upload: upload.Options{
			MaxBytes:     cfg.Upload.MaxBytes,
			AllowedTypes: cfg.Upload.AllowedTypes,
		},
		UploadSuccessDelay: cfg.Upload.SuccessDelay,
		AuthSuccessDelay:   cfg.Auth.SuccessDelay,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logr.Info("canlog gateway configured",
		zap.String("api", client.BaseURL()),
		zap.String("static_dir", cfg.Server.StaticDir))
	if err := srv.Start(ctx, cfg.Server.Port); err != nil {
		logr.Fatal("Server stopped", zap.Error(err))
	}
}
