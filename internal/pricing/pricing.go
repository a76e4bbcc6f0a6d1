// Package pricing implements the two-sided pool pricing model for binary
// outcome markets.
//
// A side's implied price is its pool divided by the sum of both pools,
// interpreted as a probability in (0,1). Staking on a side adds the net
// stake to that side's pool, which raises its implied price and lowers its
// payout multiple (odds = 1/price). Pools only grow while a market is open,
// so a seeded market can never reach a degenerate price.
//
// All monetary values use shopspring/decimal, never float64.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/model"
)

var (
	// ErrUnseededMarket is returned when either pool is non-positive.
	// Markets must be created with positive liquidity on both sides.
	ErrUnseededMarket = errors.New("pricing: market pools must both be positive")

	// ErrInvalidStake is returned when a stake is not strictly positive.
	ErrInvalidStake = errors.New("pricing: stake must be positive")

	// ErrInvalidSide is returned for a side other than YES or NO.
	ErrInvalidSide = errors.New("pricing: side must be YES or NO")
)

// PriceScale is the number of decimal places for price rounding.
const PriceScale int32 = 8

// MoneyScale is the number of decimal places for settlement amounts.
// Amounts are rounded half-even (banker's) to this scale.
const MoneyScale int32 = 2

var one = decimal.NewFromInt(1)

// Price returns the implied prices for both sides. The YES price is
// yesPool / (yesPool + noPool) rounded to PriceScale; the NO price is
// computed as 1 - yes so the pair always sums to exactly 1.
func Price(yesPool, noPool decimal.Decimal) (yes, no decimal.Decimal, err error) {
	if yesPool.LessThanOrEqual(decimal.Zero) || noPool.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrUnseededMarket
	}
	yes = yesPool.DivRound(yesPool.Add(noPool), PriceScale)
	return yes, one.Sub(yes), nil
}

// SidePrice returns the implied price for one side.
func SidePrice(yesPool, noPool decimal.Decimal, side model.Side) (decimal.Decimal, error) {
	yes, no, err := Price(yesPool, noPool)
	if err != nil {
		return decimal.Zero, err
	}
	switch side {
	case model.SideYes:
		return yes, nil
	case model.SideNo:
		return no, nil
	default:
		return decimal.Zero, ErrInvalidSide
	}
}

// ApplyStake returns the pool pair after adding netStake to one side.
// It never mutates its inputs; callers persist the returned pair (and the
// recomputed prices) in the same transaction that recorded the bet.
func ApplyStake(yesPool, noPool decimal.Decimal, side model.Side, netStake decimal.Decimal) (newYes, newNo decimal.Decimal, err error) {
	if yesPool.LessThanOrEqual(decimal.Zero) || noPool.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrUnseededMarket
	}
	if netStake.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrInvalidStake
	}
	switch side {
	case model.SideYes:
		return yesPool.Add(netStake), noPool, nil
	case model.SideNo:
		return yesPool, noPool.Add(netStake), nil
	default:
		return decimal.Zero, decimal.Zero, ErrInvalidSide
	}
}

// Payout returns the settlement amount for a winning bet: the net stake
// grown by the inverse of the price locked at execution time, rounded
// half-even to the settlement unit.
func Payout(netStake, lockedPrice decimal.Decimal) decimal.Decimal {
	if lockedPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return netStake.Div(lockedPrice).RoundBank(MoneyScale)
}

// SeedPools splits seed liquidity across both pools. The YES share rounds
// down to the settlement unit and NO takes the exact remainder, so the
// pools always sum to the seed; an odd cent lands on the NO side.
func SeedPools(seedLiquidity decimal.Decimal) (yes, no decimal.Decimal, err error) {
	if seedLiquidity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrUnseededMarket
	}
	yes = seedLiquidity.Div(decimal.NewFromInt(2)).RoundDown(MoneyScale)
	no = seedLiquidity.Sub(yes)
	if yes.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrUnseededMarket
	}
	return yes, no, nil
}
