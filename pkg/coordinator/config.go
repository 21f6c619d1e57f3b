package coordinator

import "time"

// TransactionConfig holds the timeout and retry knobs for the 2PC state
// machine, mirroring original_source/config.py's TransactionConfig.
type TransactionConfig struct {
	// GlobalTimeout bounds Begin itself and, once Begin has moved the
	// transaction to ACTIVE, the time from that moment to Prepare.
	GlobalTimeout time.Duration
	// PrepareTimeout bounds the prepare phase, measured from entry into
	// PREPARING.
	PrepareTimeout time.Duration
	// MaxRetryAttempts bounds pool acquire retries before surfacing
	// BackendUnavailable.
	MaxRetryAttempts int
	// RetryInterval is the initial backoff delay; it doubles on each
	// subsequent attempt.
	RetryInterval time.Duration
}

// DefaultTransactionConfig returns spec-mandated defaults:
// TRANSACTION_TIMEOUT=60, PREPARE_TIMEOUT=30, MAX_RETRY_ATTEMPTS=3,
// RETRY_INTERVAL=1.
func DefaultTransactionConfig() TransactionConfig {
	return TransactionConfig{
		GlobalTimeout:    60 * time.Second,
		PrepareTimeout:   30 * time.Second,
		MaxRetryAttempts: 3,
		RetryInterval:    1 * time.Second,
	}
}

// LoadTransactionConfig reads TRANSACTION_TIMEOUT, PREPARE_TIMEOUT,
// MAX_RETRY_ATTEMPTS and RETRY_INTERVAL from the environment, falling back
// to DefaultTransactionConfig for anything unset.
func LoadTransactionConfig() TransactionConfig {
	return TransactionConfig{
		GlobalTimeout:    time.Duration(envInt("TRANSACTION_TIMEOUT", 60)) * time.Second,
		PrepareTimeout:   time.Duration(envInt("PREPARE_TIMEOUT", 30)) * time.Second,
		MaxRetryAttempts: envInt("MAX_RETRY_ATTEMPTS", 3),
		RetryInterval:    time.Duration(envInt("RETRY_INTERVAL", 1)) * time.Second,
	}
}
