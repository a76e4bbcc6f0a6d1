package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for market and bet reads. Writes go to the primary store and
// invalidate the cache. The guarded mutations (ExecuteBet, ResolveMarket,
// ClaimBet) are decided entirely by the primary, so the cache can never
// influence settlement correctness, only read latency.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Writes (to primary, then invalidate) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) ExecuteBet(ctx context.Context, bet *model.Bet, newYes, newNo, priceYes, priceNo, totalVolume decimal.Decimal) error {
	if err := s.primary.ExecuteBet(ctx, bet, newYes, newNo, priceYes, priceNo, totalVolume); err != nil {
		return err
	}
	// Invalidate; next read re-populates with the committed state.
	s.rdb.Del(ctx, marketKey(bet.MarketID))
	return nil
}

func (s *CachedStore) ResolveMarket(ctx context.Context, id string, outcome model.Side, note string, resolvedAt time.Time) (*model.Market, error) {
	m, err := s.primary.ResolveMarket(ctx, id, outcome, note, resolvedAt)
	if err != nil {
		return nil, err
	}
	// Resolution flips every bet's resolved flag; drop cached bets too.
	s.rdb.Del(ctx, marketKey(id))
	s.dropMarketBets(ctx, id)
	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) ClaimBet(ctx context.Context, betID string, payout decimal.Decimal, transferState string, claimedAt time.Time) error {
	if err := s.primary.ClaimBet(ctx, betID, payout, transferState, claimedAt); err != nil {
		return err
	}
	s.rdb.Del(ctx, betKey(betID))
	return nil
}

func (s *CachedStore) SetTransferState(ctx context.Context, betID, state string) error {
	if err := s.primary.SetTransferState(ctx, betID, state); err != nil {
		return err
	}
	s.rdb.Del(ctx, betKey(betID))
	return nil
}

// --- Reads (cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetBet(ctx context.Context, id string) (*model.Bet, error) {
	data, err := s.rdb.Get(ctx, betKey(id)).Bytes()
	if err == nil {
		var b model.Bet
		if json.Unmarshal(data, &b) == nil {
			return &b, nil
		}
	}

	b, err := s.primary.GetBet(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(b); err == nil {
		s.rdb.Set(ctx, betKey(id), data, s.ttl)
	}
	return b, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetBetsByMarket(ctx context.Context, marketID string) ([]model.Bet, error) {
	return s.primary.GetBetsByMarket(ctx, marketID)
}

func (s *CachedStore) GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.primary.GetBetsByUser(ctx, userID)
}

func (s *CachedStore) ListUnsettledBets(ctx context.Context, limit int) ([]model.Bet, error) {
	return s.primary.ListUnsettledBets(ctx, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func (s *CachedStore) dropMarketBets(ctx context.Context, marketID string) {
	bets, err := s.primary.GetBetsByMarket(ctx, marketID)
	if err != nil {
		return
	}
	for _, b := range bets {
		s.rdb.Del(ctx, betKey(b.ID))
	}
}

func marketKey(id string) string { return fmt.Sprintf("market:%s", id) }
func betKey(id string) string    { return fmt.Sprintf("bet:%s", id) }
