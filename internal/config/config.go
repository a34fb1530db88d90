// Package config handles sentinel configuration
package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
)

// ReferenceFile is the name of the persisted reference inside ConfigDir.
const ReferenceFile = "reference.json"

type Config struct {
	HTTPAddr            string
	GRPCAddr            string
	WindowTitle         string
	WindowScanRate      float64 // Hz
	WatchRate           float64 // Hz
	StepTimeout         time.Duration
	BinarizeThreshold   int
	MatchMaxResults     int
	MatchMaxDistance    float64 // 0 disables the ceiling
	SearchPruneDistance float64
	SkipSimilarDistance int     // perceptual hash distance, <0 disables reuse
	AlertFrequency      float64 // Hz
	AlertDuration       time.Duration
	AutoResume          bool
	ConfigDir           string
	LogLevel            string
	LogFile             string
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	return &Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8420"),
		GRPCAddr:            getEnv("GRPC_ADDR", ":50061"),
		WindowTitle:         getEnv("WINDOW_TITLE", "Age of Empires IV"),
		WindowScanRate:      getEnvFloat("WINDOW_SCAN_RATE", 1.0),
		WatchRate:           getEnvFloat("WATCH_RATE", 1.0),
		StepTimeout:         seconds(getEnvFloat("STEP_TIMEOUT", 5)),
		BinarizeThreshold:   getEnvInt("BINARIZE_THRESHOLD", 120),
		MatchMaxResults:     getEnvInt("MATCH_MAX_RESULTS", 1),
		MatchMaxDistance:    getEnvFloat("MATCH_MAX_DISTANCE", 0),
		SearchPruneDistance: getEnvFloat("SEARCH_PRUNE_DISTANCE", 0.05),
		SkipSimilarDistance: getEnvInt("SKIP_SIMILAR_DISTANCE", -1),
		AlertFrequency:      getEnvFloat("ALERT_FREQUENCY", 12800),
		AlertDuration:       seconds(getEnvFloat("ALERT_DURATION", 0.5)),
		AutoResume:          getEnvBool("AUTO_RESUME", true),
		ConfigDir:           getEnv("CONFIG_DIR", defaultConfigDir()),
		LogLevel:            getEnv("LOG_LEVEL", "debug"),
		LogFile:             getEnv("LOG_FILE", ""),
	}
}

// Validate rejects settings the loops cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.WindowTitle == "":
		return apperrors.New(apperrors.InvalidArgument, "WINDOW_TITLE must not be empty")
	case c.WindowScanRate <= 0:
		return apperrors.Newf(apperrors.InvalidArgument, "WINDOW_SCAN_RATE must be positive, got %v", c.WindowScanRate)
	case c.WatchRate <= 0:
		return apperrors.Newf(apperrors.InvalidArgument, "WATCH_RATE must be positive, got %v", c.WatchRate)
	case c.StepTimeout <= 0:
		return apperrors.Newf(apperrors.InvalidArgument, "STEP_TIMEOUT must be positive, got %v", c.StepTimeout)
	case c.BinarizeThreshold < 0 || c.BinarizeThreshold > 255:
		return apperrors.Newf(apperrors.InvalidArgument, "BINARIZE_THRESHOLD must be within 0..255, got %d", c.BinarizeThreshold)
	case c.MatchMaxResults < 1:
		return apperrors.Newf(apperrors.InvalidArgument, "MATCH_MAX_RESULTS must be at least 1, got %d", c.MatchMaxResults)
	case c.MatchMaxDistance < 0:
		return apperrors.Newf(apperrors.InvalidArgument, "MATCH_MAX_DISTANCE must not be negative, got %v", c.MatchMaxDistance)
	case c.AlertFrequency <= 0 || c.AlertDuration <= 0:
		return apperrors.New(apperrors.InvalidArgument, "ALERT_FREQUENCY and ALERT_DURATION must be positive")
	case c.ConfigDir == "":
		return apperrors.New(apperrors.ConfigMissing, "CONFIG_DIR could not be determined")
	}
	return nil
}

// ReferencePath is where the chosen reference is persisted.
func (c *Config) ReferencePath() string {
	return filepath.Join(c.ConfigDir, ReferenceFile)
}

// Interval converts a rate in Hz to a ticker period.
func Interval(rate float64) time.Duration {
	if rate <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / rate)
}

// SlogLevel maps LOG_LEVEL onto slog; unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "queue-sentinel")
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
