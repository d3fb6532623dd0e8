// Package retry classifies node failures and computes persisted backoff
// resume times. The policy never sleeps; the scheduler stores the computed
// next attempt and resumes the execution when it comes due.
package retry

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// DefaultRetryablePatterns matches transient external failures: network
// resets and timeouts, rate limiting, and 5xx-class responses.
var DefaultRetryablePatterns = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"timed out",
	"temporary failure",
	"rate limit",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
}

// Config bounds the backoff computation.
type Config struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Multiplier        float64
	RetryablePatterns []string
}

// DefaultConfig mirrors the production defaults: up to 3 attempts, one
// minute base, one hour cap, doubling each attempt.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		BaseDelay:         time.Minute,
		MaxDelay:          time.Hour,
		Multiplier:        2.0,
		RetryablePatterns: DefaultRetryablePatterns,
	}
}

// Decision is the outcome of evaluating one failure.
type Decision struct {
	ShouldRetry   bool
	Retryable     bool
	Exhausted     bool
	NextAttemptAt *time.Time
	Delay         time.Duration
}

// Policy evaluates failures against a fixed configuration. The clock and
// jitter source are injected so tests are deterministic.
type Policy struct {
	config Config
	now    func() time.Time
	random func() float64
}

// NewPolicy creates a policy with the real clock and jitter source.
func NewPolicy(config Config) *Policy {
	return &Policy{
		config: config,
		now:    time.Now,
		random: rand.Float64,
	}
}

// NewPolicyWithClock creates a policy with injected time and jitter sources.
func NewPolicyWithClock(config Config, now func() time.Time, random func() float64) *Policy {
	return &Policy{config: config, now: now, random: random}
}

// EvaluateRetry decides whether a failed node dispatch should be re-attempted.
// Exhaustion wins over classification: once the retry budget is spent the
// error's retryability no longer matters.
func (p *Policy) EvaluateRetry(err error, currentRetryCount int) Decision {
	if currentRetryCount >= p.config.MaxRetries {
		return Decision{Exhausted: true}
	}

	if !p.IsRetryable(err) {
		return Decision{}
	}

	delay := p.backoffDelay(currentRetryCount)
	next := p.now().Add(delay)

	return Decision{
		ShouldRetry:   true,
		Retryable:     true,
		NextAttemptAt: &next,
		Delay:         delay,
	}
}

// IsRetryable classifies an error by substring match against the allow-list.
func (p *Policy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(err.Error())

	patterns := p.config.RetryablePatterns
	if len(patterns) == 0 {
		patterns = DefaultRetryablePatterns
	}

	for _, pattern := range patterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}

	return false
}

// backoffDelay computes min(maxDelay, base × multiplier^n) with ±25% jitter.
func (p *Policy) backoffDelay(retryCount int) time.Duration {
	base := float64(p.config.BaseDelay) * math.Pow(p.config.Multiplier, float64(retryCount))
	if capped := float64(p.config.MaxDelay); base > capped {
		base = capped
	}

	jitter := 0.75 + p.random()*0.5

	return time.Duration(base * jitter)
}
