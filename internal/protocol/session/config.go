package session

import (
	"errors"
	"time"
)

var (
	ErrInvalidBaseTimeout = errors.New("session: base timeout must be positive")
	ErrInvalidMaxAttempts = errors.New("session: max attempts must be at least 1")
)

// BackoffConfig defines redial backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport reliability for one request/reply session.
type Config struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// BaseTimeout is multiplied by the attempt number to get the reply wait.
	BaseTimeout time.Duration
	// MaxAttempts is the attempt count at which a timeout forces a reconnect.
	MaxAttempts int
	// IdleInterval is the pause after an idle exchange with nothing pending.
	IdleInterval time.Duration
	// PollSlice bounds how long the loop blocks before rechecking shutdown.
	PollSlice time.Duration
	Backoff   BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:  2 * time.Second,
		WriteTimeout: 5 * time.Second,
		BaseTimeout:  2500 * time.Millisecond,
		MaxAttempts:  3,
		IdleInterval: 500 * time.Millisecond,
		PollSlice:    100 * time.Millisecond,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = def.BaseTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.IdleInterval < 0 {
		c.IdleInterval = 0
	}
	if c.PollSlice <= 0 {
		c.PollSlice = def.PollSlice
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if c.BaseTimeout <= 0 {
		return ErrInvalidBaseTimeout
	}
	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	return nil
}
