// Package config reads runtime settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/sstent/stridetrack-go/internal/models"
)

type Config struct {
	DataDir  string
	DBPath   string
	HTTPAddr string

	Unit         models.Unit
	ActivityType models.ActivityType
	StepLength   float64

	ReplayFile    string
	ReplaySpeed   float64
	ReplayCadence float64

	LogLevel  logrus.Level
	LogFormat string
}

// Load reads .env files (if any) and then the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		logrus.Debug("No .env file found, using system environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		DataDir:   getenv("DATA_DIR", "./data"),
		HTTPAddr:  getenv("HTTP_ADDR", ":8888"),
		LogFormat: getenv("LOG_FORMAT", "text"),
	}

	cfg.DBPath = os.Getenv("DB_PATH")
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "tracker.db")
	}

	var err error
	if cfg.Unit, err = models.ParseUnit(getenv("DISTANCE_UNIT", "km")); err != nil {
		return Config{}, fmt.Errorf("DISTANCE_UNIT: %w", err)
	}
	if cfg.ActivityType, err = models.ParseActivityType(getenv("ACTIVITY_TYPE", "run")); err != nil {
		return Config{}, fmt.Errorf("ACTIVITY_TYPE: %w", err)
	}
	if cfg.StepLength, err = positiveFloat("STEP_LENGTH_M", 0.75); err != nil {
		return Config{}, err
	}

	cfg.ReplayFile = os.Getenv("REPLAY_FILE")
	if cfg.ReplaySpeed, err = positiveFloat("REPLAY_SPEED", 1); err != nil {
		return Config{}, err
	}
	if cfg.ReplayCadence, err = positiveFloat("REPLAY_CADENCE", 170); err != nil {
		return Config{}, err
	}

	if cfg.LogLevel, err = logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("LOG_FORMAT: must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// EnsureDataDir creates the directory holding the database file.
func (c Config) EnsureDataDir() error {
	if err := os.MkdirAll(filepath.Dir(c.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Logger returns a logrus logger configured from c.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func positiveFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %v", key, v)
	}
	return v, nil
}
