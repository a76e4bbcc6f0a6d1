// Package settle provides the HTTP handlers and business logic of the
// settlement engine: placing bets against a market's pools, resolving a
// market to its final outcome, and paying out winning bets exactly once.
//
// All monetary values use shopspring/decimal, never float64.
package settle

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/fees"
	"github.com/omenmarket/settlement-engine/internal/pricing"
	"github.com/omenmarket/settlement-engine/internal/store"
	"github.com/omenmarket/settlement-engine/internal/wallet"
)

var (
	// ErrInvalidAmount is returned when the gross amount is not positive.
	ErrInvalidAmount = errors.New("settle: gross amount must be positive")

	// ErrInvalidSide is returned for a side other than YES or NO.
	ErrInvalidSide = errors.New("settle: side must be YES or NO")

	// ErrInvalidOutcome is returned when a resolution carries no valid outcome.
	ErrInvalidOutcome = errors.New("settle: outcome must be YES or NO")

	// ErrMarketClosed is returned when the market is resolved or past its
	// end date.
	ErrMarketClosed = errors.New("settle: market closed to new bets")

	// ErrForbidden is returned when a claim comes from someone other than
	// the bet's owner.
	ErrForbidden = errors.New("settle: bet does not belong to requester")

	// ErrNotResolved is returned when claiming against a still-open market.
	ErrNotResolved = errors.New("settle: market not resolved")

	// ErrSettlementPending is returned when the claim was recorded but the
	// external transfer did not confirm. The transfer is retried with its
	// original idempotency key; the caller must not re-claim.
	ErrSettlementPending = errors.New("settle: transfer pending, will be retried")
)

// Service handles market, bet, and claim operations. Bets on the same
// market serialize on a per-market mutex held across the whole
// read-price/split-fees/debit/commit sequence (single-instance; for
// horizontal scaling the store's conditional updates are the backstop).
type Service struct {
	store           store.Store
	wallet          wallet.Service
	fees            fees.Schedule
	seedLiquidity   decimal.Decimal
	platformAccount string
	locks           keyedMutex
	wsHub           *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new settlement service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, w wallet.Service, schedule fees.Schedule, seedLiquidity decimal.Decimal, platformAccount string, hub *WSHub) *Service {
	return &Service{
		store:           st,
		wallet:          w,
		fees:            schedule,
		seedLiquidity:   seedLiquidity,
		platformAccount: platformAccount,
		wsHub:           hub,
	}
}

// keyedMutex hands out one mutex per market id. Entries are never removed;
// the map is bounded by the number of markets.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeDomainError maps a domain error onto its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), statusForError(err))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidSide),
		errors.Is(err, ErrInvalidOutcome),
		errors.Is(err, fees.ErrAmountTooSmall),
		errors.Is(err, fees.ErrInvalidRate),
		errors.Is(err, pricing.ErrUnseededMarket),
		errors.Is(err, pricing.ErrInvalidStake):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrMarketClosed),
		errors.Is(err, ErrForbidden),
		errors.Is(err, store.ErrMarketNotOpen):
		return http.StatusForbidden
	case errors.Is(err, store.ErrMarketNotFound),
		errors.Is(err, store.ErrBetNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyResolved),
		errors.Is(err, store.ErrAlreadyClaimed),
		errors.Is(err, ErrNotResolved),
		errors.Is(err, store.ErrMarketExists):
		return http.StatusConflict
	case errors.Is(err, ErrSettlementPending),
		errors.Is(err, wallet.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
