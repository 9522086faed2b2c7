package session

import (
	"math"
	"math/rand"
	"time"
)

// ReplyTimeout returns the reply wait for attempt N (1-based): base × N.
func ReplyTimeout(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

// Attempts counts consecutive unanswered requests.
type Attempts struct {
	max     int
	current int
}

func NewAttempts(max int) *Attempts {
	if max < 1 {
		max = 1
	}
	return &Attempts{max: max, current: 1}
}

// Current returns the 1-based attempt number for the next request.
func (a *Attempts) Current() int {
	return a.current
}

// Succeed resets the counter after a reply.
func (a *Attempts) Succeed() {
	a.current = 1
}

// Fail records a timeout. It returns true when the cap was reached, in which
// case the counter is already reset and the caller must reconnect.
func (a *Attempts) Fail() bool {
	if a.current < a.max {
		a.current++
		return false
	}
	a.current = 1
	return true
}

// NextBackoffDelay returns the redial delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
