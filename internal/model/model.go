// Package model defines the core domain types shared across the settlement
// engine. All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one of the two outcomes of a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid reports whether s is one of the two recognized sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Market status values. A market moves open → resolved exactly once and
// never moves back.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Transfer sub-states for a claimed winning bet's external credit.
// pending → sent → confirmed on the happy path; failed transfers keep their
// idempotency key and are retried by the settlement sweeper.
const (
	TransferNone      = ""
	TransferPending   = "pending"
	TransferSent      = "sent"
	TransferConfirmed = "confirmed"
	TransferFailed    = "failed"
)

// Market is the state of a binary prediction market. Pools are denominated
// in the settlement currency and only ever grow while the market is open.
// Prices are cached derivations of the pools and are rewritten in the same
// transaction as every pool mutation.
type Market struct {
	ID         string          `json:"id" db:"id"`
	Title      string          `json:"title" db:"title"`
	CategoryID string          `json:"category_id" db:"category_id"`
	CreatorID  string          `json:"creator_id" db:"creator_id"`
	YesPool    decimal.Decimal `json:"yes_pool" db:"yes_pool"`
	NoPool     decimal.Decimal `json:"no_pool" db:"no_pool"`
	PriceYes   decimal.Decimal `json:"price_yes" db:"price_yes"`
	PriceNo    decimal.Decimal `json:"price_no" db:"price_no"`
	// TotalVolume is the cumulative gross (pre-fee) bet amount.
	TotalVolume decimal.Decimal `json:"total_volume" db:"total_volume"`
	Status      string          `json:"status" db:"status"`
	// Outcome is empty while open, YES or NO once resolved. Immutable after.
	Outcome        Side       `json:"outcome,omitempty" db:"outcome"`
	ResolutionNote string     `json:"resolution_note,omitempty" db:"resolution_note"`
	EndDate        time.Time  `json:"end_date" db:"end_date"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`

	// Optional per-market fee overrides. Nil means the engine's configured
	// global rates apply.
	PlatformFeeRate *decimal.Decimal `json:"platform_fee_rate,omitempty" db:"platform_fee_rate"`
	CreatorFeeRate  *decimal.Decimal `json:"creator_fee_rate,omitempty" db:"creator_fee_rate"`
}

// AcceptsBets reports whether the market can take a new bet at instant now.
func (m *Market) AcceptsBets(now time.Time) bool {
	return m.Status == StatusOpen && now.Before(m.EndDate)
}

// Bet is an immutable record of one executed bet. Created only by bet
// execution; mutated only by resolution (resolved flag) and by claim
// (payout, claimed, transfer state); never deleted.
type Bet struct {
	ID          string          `json:"id" db:"id"`
	MarketID    string          `json:"market_id" db:"market_id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Side        Side            `json:"side" db:"side"`
	GrossAmount decimal.Decimal `json:"gross_amount" db:"gross_amount"`
	PlatformFee decimal.Decimal `json:"platform_fee" db:"platform_fee"`
	CreatorFee  decimal.Decimal `json:"creator_fee" db:"creator_fee"`
	NetStake    decimal.Decimal `json:"net_stake" db:"net_stake"`
	// Price is the side's implied price at execution time, locked forever.
	// The payout of a winning bet is NetStake / Price.
	Price     decimal.Decimal `json:"price" db:"price"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`

	// Resolved mirrors the market's status for query efficiency.
	Resolved bool `json:"resolved" db:"resolved"`
	// Claimed flips to true exactly once; Payout is written in the same
	// conditional update and is zero for losing bets.
	Claimed       bool            `json:"claimed" db:"claimed"`
	Payout        decimal.Decimal `json:"payout" db:"payout"`
	TransferState string          `json:"transfer_state,omitempty" db:"transfer_state"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty" db:"claimed_at"`
}

// Won reports whether the bet is on the market's resolved outcome.
func (b *Bet) Won(outcome Side) bool {
	return b.Side == outcome
}

// PayoutResult is returned from a claim. Won=false means the claim was a
// recorded no-op with a zero payout.
type PayoutResult struct {
	BetID         string          `json:"bet_id"`
	MarketID      string          `json:"market_id"`
	UserID        string          `json:"user_id"`
	Won           bool            `json:"won"`
	Payout        decimal.Decimal `json:"payout"`
	TransferState string          `json:"transfer_state"`
}
