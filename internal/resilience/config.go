package resilience

import (
	"time"
)

// PolicyFromConfig builds a Policy from config values, keeping defaults for
// anything unset. A negative backoff is treated as unset.
func PolicyFromConfig(maxAttempts, backoffMs int) Policy {
	p := DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if backoffMs >= 0 {
		p.Backoff = time.Duration(backoffMs) * time.Millisecond
	}
	return p
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
// Zero values keep the defaults.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
