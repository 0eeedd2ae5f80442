package policy

import (
	"errors"
	"sync"
)

// ErrBudgetExhausted is returned by callers refusing a step once the run's
// token or time budget is spent.
var ErrBudgetExhausted = errors.New("run budget exhausted")

// BudgetState tracks token and wall-clock consumption across a run.
//
// Fields only ever grow; a run is budget-exhausted once used >= limit on any
// dimension with a nonzero limit.
type BudgetState struct {
	mu sync.Mutex

	tokensUsed int64
	tokenLimit int64

	timeUsedMs int64
	timeLimit  int64
}

// NewBudget creates a budget with the given limits. A zero limit disables
// that dimension.
func NewBudget(tokenLimit, timeLimitMs int64) *BudgetState {
	return &BudgetState{
		tokenLimit: tokenLimit,
		timeLimit:  timeLimitMs,
	}
}

// AddTokens records token consumption. Negative deltas are ignored to keep
// the state monotonic.
func (b *BudgetState) AddTokens(n int64) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.tokensUsed += n
	b.mu.Unlock()
}

// AddTimeMs records elapsed wall-clock milliseconds. Negative deltas are
// ignored.
func (b *BudgetState) AddTimeMs(ms int64) {
	if ms <= 0 {
		return
	}
	b.mu.Lock()
	b.timeUsedMs += ms
	b.mu.Unlock()
}

// TokensUsed returns the tokens consumed so far.
func (b *BudgetState) TokensUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokensUsed
}

// TimeUsedMs returns the milliseconds consumed so far.
func (b *BudgetState) TimeUsedMs() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeUsedMs
}

// Exhausted reports whether any limited dimension has been used up.
func (b *BudgetState) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokenLimit > 0 && b.tokensUsed >= b.tokenLimit {
		return true
	}
	if b.timeLimit > 0 && b.timeUsedMs >= b.timeLimit {
		return true
	}
	return false
}
