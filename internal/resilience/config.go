package resilience

import "time"

// Circuit breaker configuration constants
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Alert tones: a dead audio device should stop being hammered once per watch tick
	AlertThreshold         = 3
	AlertResetTimeout      = 15 * time.Second
	AlertHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // reported in logs and state hooks
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// AlertConfig returns the settings used around the tone device.
func AlertConfig() Config {
	return Config{
		Name:              "alert",
		Threshold:         AlertThreshold,
		ResetTimeout:      AlertResetTimeout,
		HalfOpenSuccesses: AlertHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
