// Package wallet defines the client contract for the external Wallet
// Service, which owns account balances and performs the actual funds
// transfers. The engine never implements custody; it only drives debits and
// credits through this interface, always with an idempotency key derived
// from the bet id so that retried calls can never double-spend.
package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the account's
	// available balance.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")

	// ErrUnavailable is returned when the wallet backend cannot be reached
	// or answers ambiguously after bounded retries. The operation may or
	// may not have been applied remotely; callers must retry with the same
	// idempotency key, never a fresh one.
	ErrUnavailable = errors.New("wallet: service unavailable")
)

// Status is the outcome of a credit. Debits are binary (applied or not);
// credits to custodial or on-chain backends may confirm asynchronously.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Service is the consumed Wallet Service contract.
type Service interface {
	// Balance returns the account's available balance.
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)

	// Debit removes amount from the account. Replays of the same
	// idempotency key are no-ops that report success.
	Debit(ctx context.Context, userID string, amount decimal.Decimal, idempotencyKey string) error

	// Credit adds amount to the account. Replays of the same idempotency
	// key are no-ops that report the original status.
	Credit(ctx context.Context, userID string, amount decimal.Decimal, idempotencyKey string) (Status, error)
}

// Idempotency keys. One bet id yields one stable key per transfer kind, so
// a retried call after a timeout lands on the same remote operation.

func DebitKey(betID string) string       { return "debit:" + betID }
func RefundKey(betID string) string      { return "refund:" + betID }
func PayoutKey(betID string) string      { return "payout:" + betID }
func PlatformFeeKey(betID string) string { return "fee:platform:" + betID }
func CreatorFeeKey(betID string) string  { return "fee:creator:" + betID }
