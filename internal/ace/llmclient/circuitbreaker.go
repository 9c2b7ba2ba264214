package llmclient

import (
	"sync"
	"time"

	"github.com/ace-loop/trading-ace/internal/observ"
)

// BreakerState mirrors the classic closed/open/half-open circuit breaker
// machine, trimmed from the graduated multi-state breaker a live-trading
// circuit breaker needs down to the two-sided question an LLM call guard
// actually asks: is the backend healthy enough to try.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreaker opens after a run of consecutive failures and stays open
// for a reset timeout before allowing one probe call through.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failureThreshold int
	resetTimeout     time.Duration
	consecutiveFails int
	openedAt         time.Time
}

func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

// Allow reports whether a call may proceed, transitioning Open -> HalfOpen
// once the reset timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			observ.SetGauge("ace_llm_circuit_state", 1, nil)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	if cb.state != StateClosed {
		observ.Log("llm.circuit_closed", nil)
	}
	cb.state = StateClosed
	observ.SetGauge("ace_llm_circuit_state", 0, nil)
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails++
	if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.failureThreshold {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		observ.SetGauge("ace_llm_circuit_state", 2, nil)
		observ.Log("llm.circuit_open", map[string]any{"consecutive_failures": cb.consecutiveFails})
	}
}
