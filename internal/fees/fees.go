// Package fees implements the fee split applied to every bet: a platform
// fee and a market-creator fee are deducted from the gross amount and the
// remainder becomes the net stake added to the pool.
//
// The split conserves money exactly: gross == net + platform + creator at
// the settlement unit, with each fee rounded half-even to the cent and the
// net stake taken as the remainder.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/model"
)

var (
	// ErrInvalidRate is returned when a rate is negative or the combined
	// rates leave no room for a net stake.
	ErrInvalidRate = errors.New("fees: rates must be non-negative and sum below 1")

	// ErrAmountTooSmall is returned when fees would consume the entire
	// gross amount, leaving a non-positive net stake.
	ErrAmountTooSmall = errors.New("fees: amount too small to cover fees")
)

// MoneyScale is the rounding scale for fee amounts (settlement cents).
const MoneyScale int32 = 2

// Schedule holds the engine's default fee rates. Markets may carry
// per-market overrides which take precedence.
type Schedule struct {
	PlatformRate decimal.Decimal
	CreatorRate  decimal.Decimal
}

// NewSchedule validates and returns a fee schedule.
func NewSchedule(platformRate, creatorRate decimal.Decimal) (Schedule, error) {
	if err := validateRates(platformRate, creatorRate); err != nil {
		return Schedule{}, err
	}
	return Schedule{PlatformRate: platformRate, CreatorRate: creatorRate}, nil
}

func validateRates(platform, creator decimal.Decimal) error {
	if platform.IsNegative() || creator.IsNegative() {
		return ErrInvalidRate
	}
	if platform.Add(creator).GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidRate
	}
	return nil
}

// Breakdown is the result of splitting a gross bet amount.
type Breakdown struct {
	Gross       decimal.Decimal
	PlatformFee decimal.Decimal
	CreatorFee  decimal.Decimal
	NetStake    decimal.Decimal
}

// Split deducts both fees from gross using the schedule's rates, or the
// market's override rates when present. The net stake is the exact
// remainder, so the breakdown always reconciles to the cent.
func (s Schedule) Split(gross decimal.Decimal, m *model.Market) (Breakdown, error) {
	platformRate := s.PlatformRate
	creatorRate := s.CreatorRate
	if m != nil && m.PlatformFeeRate != nil {
		platformRate = *m.PlatformFeeRate
	}
	if m != nil && m.CreatorFeeRate != nil {
		creatorRate = *m.CreatorFeeRate
	}
	if err := validateRates(platformRate, creatorRate); err != nil {
		return Breakdown{}, err
	}

	platformFee := gross.Mul(platformRate).RoundBank(MoneyScale)
	creatorFee := gross.Mul(creatorRate).RoundBank(MoneyScale)
	net := gross.Sub(platformFee).Sub(creatorFee)

	if net.LessThanOrEqual(decimal.Zero) {
		return Breakdown{}, ErrAmountTooSmall
	}

	return Breakdown{
		Gross:       gross,
		PlatformFee: platformFee,
		CreatorFee:  creatorFee,
		NetStake:    net,
	}, nil
}
