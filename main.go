package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"jaundice/config"
	"jaundice/db"
	qhttp "jaundice/http"
	"jaundice/logging"
	"jaundice/ml"
	"jaundice/monitoring"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.Path("config.yaml"), "path to config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, level, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	stopWatch, err := config.Watch(*configPath, logger, func(updated *config.Config) {
		if err := logging.SetLevel(level, updated.Log.Level); err != nil {
			logger.Warn("invalid log level in config", zap.String("level", updated.Log.Level), zap.Error(err))
			return
		}
		logger.Info("log level updated", zap.String("level", updated.Log.Level))
	})
	if err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
	} else {
		defer stopWatch()
	}

	// 2. Load model artifacts; a failure degrades the service instead of exiting
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		logger.Fatal("invalid ml config", zap.Error(err))
	}
	store := ml.LoadStore(storeCfg, logger)

	// 3. Observers
	metrics := monitoring.NewMetricsCollector()
	hub := monitoring.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	observers := []ml.Observer{metrics, hub}
	deps := qhttp.Deps{
		Metrics:      metrics,
		StrictStatus: cfg.Http.StrictStatus,
		Logger:       logger,
	}
	if cfg.Database.Path != "" {
		history, err := db.Open(cfg.Database.Path, logger)
		if err != nil {
			logger.Fatal("failed to open prediction history", zap.String("path", cfg.Database.Path), zap.Error(err))
		}
		defer history.Close()
		observers = append(observers, history)
		deps.History = history
		logger.Info("prediction history enabled", zap.String("path", cfg.Database.Path))
	}

	service, err := ml.NewService(store, ml.ServiceConfig{
		CacheSize: cfg.ML.CacheSize,
		Observers: observers,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to build prediction service", zap.Error(err))
	}
	deps.Service = service

	// 4. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}, deps, hub)
	errs := make(chan error, 1)
	go func() {
		errs <- server.Start()
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errs:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return
		}
	}

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
