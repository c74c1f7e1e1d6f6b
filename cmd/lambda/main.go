package main

import (
	"log"

	"jaundice/config"
	"jaundice/db"
	"jaundice/function"
	"jaundice/logging"
	"jaundice/ml"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.Path("config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, _, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// artifacts are loaded once per container, before the first invocation
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		logger.Fatal("invalid ml config", zap.Error(err))
	}
	store := ml.LoadStore(storeCfg, logger)

	var observers []ml.Observer
	if cfg.Database.Path != "" {
		history, err := db.Open(cfg.Database.Path, logger)
		if err != nil {
			logger.Warn("prediction history disabled", zap.Error(err))
		} else {
			defer history.Close()
			observers = append(observers, history)
		}
	}

	service, err := ml.NewService(store, ml.ServiceConfig{
		CacheSize: cfg.ML.CacheSize,
		Observers: observers,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to build prediction service", zap.Error(err))
	}

	lambda.Start(function.NewHandler(service, logger).Handle)
}
