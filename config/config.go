package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"jaundice/logging"
	"jaundice/ml"

	"gopkg.in/yaml.v2"
)

const placeholderDateLayout = "2006-01-02"

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
		StrictStatus   bool          `yaml:"strict_status"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	ML struct {
		ModelType        string `yaml:"model_type"`
		ModelPath        string `yaml:"model_path"`
		FeatureNamesPath string `yaml:"feature_names_path"`
		PlaceholderDate  string `yaml:"placeholder_date"`
		CacheSize        int    `yaml:"cache_size"`
	} `yaml:"ml"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file. A missing file yields the defaults; a file
// that exists but does not parse is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path resolves the config file location from JAUNDICE_CONFIG.
func Path(fallback string) string {
	return getEnv("JAUNDICE_CONFIG", fallback)
}

func (c *Config) applyDefaults() {
	if c.Http.Port == 0 {
		c.Http.Port = 5000
	}
	if c.Http.Timeout == 0 {
		c.Http.Timeout = 30 * time.Second
	}
	if len(c.Http.AllowedOrigins) == 0 {
		c.Http.AllowedOrigins = []string{"*"}
	}
	if c.Http.MaxBodyBytes == 0 {
		c.Http.MaxBodyBytes = 1 << 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 30
	}
	if c.ML.ModelPath == "" {
		c.ML.ModelPath = "gbr_jaundice_model.json"
	}
	if c.ML.FeatureNamesPath == "" {
		c.ML.FeatureNamesPath = "gbr_feature_names.json"
	}
	if c.ML.PlaceholderDate == "" {
		c.ML.PlaceholderDate = "2024-12-15"
	}
}

// applyEnv lets deployments that cannot ship a config file (function
// runtimes) point at their artifacts.
func (c *Config) applyEnv() {
	c.ML.ModelPath = getEnv("JAUNDICE_MODEL_PATH", c.ML.ModelPath)
	c.ML.FeatureNamesPath = getEnv("JAUNDICE_FEATURE_NAMES_PATH", c.ML.FeatureNamesPath)
	c.Log.Level = getEnv("JAUNDICE_LOG_LEVEL", c.Log.Level)
	c.Database.Path = getEnv("JAUNDICE_DB_PATH", c.Database.Path)
}

func (c *Config) Validate() error {
	if c.Http.Port < 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Http.Timeout < 0 {
		return errors.New("http.timeout must not be negative")
	}
	if c.ML.CacheSize < 0 {
		return errors.New("ml.cache_size must not be negative")
	}
	if _, err := c.Placeholder(); err != nil {
		return err
	}
	return nil
}

// Placeholder parses ml.placeholder_date.
func (c *Config) Placeholder() (time.Time, error) {
	t, err := time.Parse(placeholderDateLayout, c.ML.PlaceholderDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("ml.placeholder_date: %w", err)
	}
	return t, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// StoreConfig converts the ml section into model store settings.
func (c *Config) StoreConfig() (ml.StoreConfig, error) {
	placeholder, err := c.Placeholder()
	if err != nil {
		return ml.StoreConfig{}, err
	}
	return ml.StoreConfig{
		ModelType:        c.ML.ModelType,
		ModelPath:        c.ML.ModelPath,
		FeatureNamesPath: c.ML.FeatureNamesPath,
		PlaceholderDate:  placeholder,
	}, nil
}

// LoggingOptions converts the log section into logger options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}
