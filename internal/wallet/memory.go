package wallet

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryWallet implements Service with in-memory balances. Used for testing
// and development. Idempotency keys are recorded so replays are no-ops,
// matching the contract of a real custodial backend.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	applied  map[string]Status // idempotency key → recorded outcome

	// CreditMode, when set, forces the status of first-time credits.
	// Replays always report the previously recorded status.
	CreditMode Status

	// CreditCalls counts credit applications that actually moved money,
	// excluding idempotent replays.
	CreditCalls int
}

// NewMemoryWallet creates an empty in-memory wallet.
func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{
		balances: make(map[string]decimal.Decimal),
		applied:  make(map[string]Status),
	}
}

// Fund sets an account's balance directly.
func (w *MemoryWallet) Fund(userID string, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = amount
}

func (w *MemoryWallet) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID], nil
}

func (w *MemoryWallet) Debit(_ context.Context, userID string, amount decimal.Decimal, idempotencyKey string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.applied[idempotencyKey]; ok {
		return nil
	}

	balance := w.balances[userID]
	if balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.balances[userID] = balance.Sub(amount)
	w.applied[idempotencyKey] = StatusOK
	return nil
}

func (w *MemoryWallet) Credit(_ context.Context, userID string, amount decimal.Decimal, idempotencyKey string) (Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if status, ok := w.applied[idempotencyKey]; ok {
		return status, nil
	}

	if w.CreditMode == StatusFailed {
		// Failed transfers are not recorded; a retry may later succeed.
		return StatusFailed, ErrUnavailable
	}

	status := StatusOK
	if w.CreditMode == StatusPending {
		status = StatusPending
	}

	w.balances[userID] = w.balances[userID].Add(amount)
	w.applied[idempotencyKey] = status
	w.CreditCalls++
	return status, nil
}

// Applied reports whether an idempotency key has been recorded.
func (w *MemoryWallet) Applied(idempotencyKey string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.applied[idempotencyKey]
	return ok
}
