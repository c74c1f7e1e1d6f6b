package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"jaundice/config"
	"jaundice/logging"
	"jaundice/ml"
)

func main() {
	configPath := flag.String("config", config.Path("config.yaml"), "path to config file")
	modelPath := flag.String("model_path", "", "model artifact (overrides config)")
	namesPath := flag.String("feature_names_path", "", "feature names artifact (overrides config)")
	recordPath := flag.String("record", "-", "JSON record file, - for stdin")
	showVector := flag.Bool("vector", false, "print the aligned feature vector")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *modelPath != "" {
		cfg.ML.ModelPath = *modelPath
	}
	if *namesPath != "" {
		cfg.ML.FeatureNamesPath = *namesPath
	}

	logger, _, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		log.Fatalf("invalid ml config: %v", err)
	}
	store := ml.LoadStore(storeCfg, logger)

	record, err := readRecord(*recordPath)
	if err != nil {
		log.Fatalf("failed to read record: %v", err)
	}

	if *showVector && store.Ready() {
		if err := printVector(store, storeCfg.PlaceholderDate, record); err != nil {
			log.Fatalf("failed to align record: %v", err)
		}
	}

	service, err := ml.NewService(store, ml.ServiceConfig{Logger: logger})
	if err != nil {
		log.Fatalf("failed to build prediction service: %v", err)
	}
	ctx := ml.WithSource(context.Background(), "cli")
	prediction, err := service.Predict(ctx, record)

	out, _ := json.MarshalIndent(ml.NewResponse(prediction, err), "", "  ")
	fmt.Println(string(out))
	if err != nil {
		os.Exit(1)
	}
}

func readRecord(path string) (ml.Record, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ml.DecodeRecord(data)
}

func printVector(store *ml.Store, placeholder time.Time, record ml.Record) error {
	schema := store.Schema()
	vector, err := ml.NewAligner(schema, placeholder).Align(record)
	if err != nil {
		return err
	}
	for i, name := range schema {
		fmt.Fprintf(os.Stderr, "%-32s %g\n", name, vector[i])
	}
	return nil
}
