// Package store defines the persistence interface for the settlement
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
//
// The store owns all persisted market and bet state. Pools, the resolution
// status, and the claimed flag are only ever mutated through the three
// guarded operations below: ExecuteBet (transactional pool update + bet
// insert), ResolveMarket (conditional open → resolved transition), and
// ClaimBet (conditional claimed=false → true flip). Every implementation
// must make those guards atomic so concurrent callers serialize correctly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/model"
)

var (
	// ErrMarketNotFound is returned when a market id does not exist.
	ErrMarketNotFound = errors.New("store: market not found")

	// ErrBetNotFound is returned when a bet id does not exist.
	ErrBetNotFound = errors.New("store: bet not found")

	// ErrMarketExists is returned when creating a market with a taken id.
	ErrMarketExists = errors.New("store: market already exists")

	// ErrMarketNotOpen is returned when ExecuteBet finds the market no
	// longer open at commit time.
	ErrMarketNotOpen = errors.New("store: market not open")

	// ErrAlreadyResolved is returned when ResolveMarket finds the market
	// already resolved. Exactly one of two concurrent resolvers wins.
	ErrAlreadyResolved = errors.New("store: market already resolved")

	// ErrAlreadyClaimed is returned when ClaimBet finds the bet already
	// claimed. Exactly one of N concurrent claimers wins.
	ErrAlreadyClaimed = errors.New("store: bet already claimed")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market with seeded pools.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// ExecuteBet atomically writes the post-bet pool pair, recomputed
	// prices, and cumulative volume, and inserts the bet record. The
	// update is guarded on status = open; either everything commits or
	// nothing does.
	ExecuteBet(ctx context.Context, bet *model.Bet, newYes, newNo, priceYes, priceNo, totalVolume decimal.Decimal) error

	// ResolveMarket transitions the market open → resolved, guarded on the
	// current status, and flips the redundant resolved flag on the
	// market's bets in the same atomic unit. Returns ErrAlreadyResolved
	// if another resolver already won.
	ResolveMarket(ctx context.Context, id string, outcome model.Side, note string, resolvedAt time.Time) (*model.Market, error)

	// --- Bet operations ---

	// GetBet retrieves a bet by its ID.
	GetBet(ctx context.Context, id string) (*model.Bet, error)

	// GetBetsByMarket returns all bets on a market, oldest first.
	GetBetsByMarket(ctx context.Context, marketID string) ([]model.Bet, error)

	// GetBetsByUser returns all bets for a user, oldest first.
	GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error)

	// ClaimBet flips claimed to true and freezes the payout and initial
	// transfer state, conditional on claimed still being false. Returns
	// ErrAlreadyClaimed when another claimer already won.
	ClaimBet(ctx context.Context, betID string, payout decimal.Decimal, transferState string, claimedAt time.Time) error

	// SetTransferState advances a claimed bet's transfer sub-state.
	SetTransferState(ctx context.Context, betID, state string) error

	// ListUnsettledBets returns claimed bets whose external transfer is
	// still pending, sent, or failed, for the settlement sweeper to
	// retry. Pending covers a crash between the claim commit and the
	// first credit attempt.
	ListUnsettledBets(ctx context.Context, limit int) ([]model.Bet, error)
}
