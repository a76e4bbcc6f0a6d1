package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence). The single
// mutex gives the same serialization the Postgres implementation gets from
// conditional updates.
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[string]*model.Market
	bets    map[string]*model.Bet
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[string]*model.Market),
		bets:    make(map[string]*model.Bet),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return ErrMarketExists
	}

	// Store a copy to avoid external mutation.
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, ErrMarketNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.After(markets[j].CreatedAt)
	})
	return markets, nil
}

func (s *MemoryStore) ExecuteBet(_ context.Context, bet *model.Bet, newYes, newNo, priceYes, priceNo, totalVolume decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[bet.MarketID]
	if !ok {
		return ErrMarketNotFound
	}
	if m.Status != model.StatusOpen {
		return ErrMarketNotOpen
	}

	m.YesPool = newYes
	m.NoPool = newNo
	m.PriceYes = priceYes
	m.PriceNo = priceNo
	m.TotalVolume = totalVolume

	cp := *bet
	s.bets[bet.ID] = &cp
	return nil
}

func (s *MemoryStore) ResolveMarket(_ context.Context, id string, outcome model.Side, note string, resolvedAt time.Time) (*model.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, ErrMarketNotFound
	}
	if m.Status != model.StatusOpen {
		return nil, ErrAlreadyResolved
	}

	m.Status = model.StatusResolved
	m.Outcome = outcome
	m.ResolutionNote = note
	at := resolvedAt
	m.ResolvedAt = &at

	for _, b := range s.bets {
		if b.MarketID == id {
			b.Resolved = true
		}
	}

	cp := *m
	return &cp, nil
}

func (s *MemoryStore) GetBet(_ context.Context, id string) (*model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bets[id]
	if !ok {
		return nil, ErrBetNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) GetBetsByMarket(_ context.Context, marketID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for _, b := range s.bets {
		if b.MarketID == marketID {
			result = append(result, *b)
		}
	}
	sortBets(result)
	return result, nil
}

func (s *MemoryStore) GetBetsByUser(_ context.Context, userID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for _, b := range s.bets {
		if b.UserID == userID {
			result = append(result, *b)
		}
	}
	sortBets(result)
	return result, nil
}

func (s *MemoryStore) ClaimBet(_ context.Context, betID string, payout decimal.Decimal, transferState string, claimedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[betID]
	if !ok {
		return ErrBetNotFound
	}
	if b.Claimed {
		return ErrAlreadyClaimed
	}

	b.Claimed = true
	b.Payout = payout
	b.TransferState = transferState
	at := claimedAt
	b.ClaimedAt = &at
	return nil
}

func (s *MemoryStore) SetTransferState(_ context.Context, betID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[betID]
	if !ok {
		return ErrBetNotFound
	}
	b.TransferState = state
	return nil
}

func (s *MemoryStore) ListUnsettledBets(_ context.Context, limit int) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for _, b := range s.bets {
		if b.Claimed && unsettledState(b.TransferState) {
			result = append(result, *b)
		}
	}
	sortBets(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// unsettledState reports whether a claimed bet's transfer still needs the
// sweeper. A bet left pending by a crash between the claim commit and the
// wallet credit must be picked up too, not just sent/failed ones.
func unsettledState(state string) bool {
	return state == model.TransferPending ||
		state == model.TransferSent ||
		state == model.TransferFailed
}

func sortBets(bets []model.Bet) {
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].CreatedAt.Equal(bets[j].CreatedAt) {
			return bets[i].ID < bets[j].ID
		}
		return bets[i].CreatedAt.Before(bets[j].CreatedAt)
	})
}
