package settle

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/metrics"
	"github.com/omenmarket/settlement-engine/internal/model"
	"github.com/omenmarket/settlement-engine/internal/pricing"
	"github.com/omenmarket/settlement-engine/internal/wallet"
)

// PlaceBetRequest is the JSON body for POST /bets.
type PlaceBetRequest struct {
	MarketID    string          `json:"market_id"`
	UserID      string          `json:"user_id"`
	Side        model.Side      `json:"side"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

// PlaceBet handles POST /api/v1/bets
//
// The whole sequence (read price, split fees, debit the wallet, commit
// pools and the bet record) runs under the market's mutex so two
// concurrent bets can never price themselves off the same stale pools.
// The wallet debit happens before the ledger commit; if the commit fails a
// compensating refund (same bet id, refund key) puts the money back.
func (s *Service) PlaceBet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req PlaceBetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if !req.Side.Valid() {
		writeDomainError(w, ErrInvalidSide)
		return
	}
	if req.GrossAmount.LessThanOrEqual(decimal.Zero) {
		writeDomainError(w, ErrInvalidAmount)
		return
	}

	ctx := r.Context()

	// Serialize bet execution per market.
	unlock := s.locks.Lock(req.MarketID)
	defer unlock()

	market, err := s.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !market.AcceptsBets(time.Now().UTC()) {
		writeDomainError(w, ErrMarketClosed)
		return
	}

	// --- Balance precondition ---
	balance, err := s.wallet.Balance(ctx, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if balance.LessThan(req.GrossAmount) {
		writeDomainError(w, wallet.ErrInsufficientFunds)
		return
	}

	// --- Fee split ---
	breakdown, err := s.fees.Split(req.GrossAmount, market)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// --- Price lock + pool mutation ---
	price, err := pricing.SidePrice(market.YesPool, market.NoPool, req.Side)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	newYes, newNo, err := pricing.ApplyStake(market.YesPool, market.NoPool, req.Side, breakdown.NetStake)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	priceYes, priceNo, err := pricing.Price(newYes, newNo)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	bet := &model.Bet{
		ID:          uuid.New().String(),
		MarketID:    market.ID,
		UserID:      req.UserID,
		Side:        req.Side,
		GrossAmount: breakdown.Gross,
		PlatformFee: breakdown.PlatformFee,
		CreatorFee:  breakdown.CreatorFee,
		NetStake:    breakdown.NetStake,
		Price:       price,
		CreatedAt:   time.Now().UTC(),
	}

	// --- Debit, then commit; refund if the commit fails ---
	if err := s.wallet.Debit(ctx, req.UserID, breakdown.Gross, wallet.DebitKey(bet.ID)); err != nil {
		writeDomainError(w, err)
		return
	}

	totalVolume := market.TotalVolume.Add(breakdown.Gross)
	if err := s.store.ExecuteBet(ctx, bet, newYes, newNo, priceYes, priceNo, totalVolume); err != nil {
		s.refundDebit(ctx, bet.ID, req.UserID, breakdown.Gross)
		writeDomainError(w, err)
		return
	}

	s.routeFees(ctx, bet, market.CreatorID)

	metrics.BetsTotal.WithLabelValues(string(req.Side)).Inc()
	metrics.BetLatency.WithLabelValues(string(req.Side)).Observe(time.Since(start).Seconds())

	slog.Info("bet executed",
		"bet_id", bet.ID,
		"market_id", market.ID,
		"user", req.UserID,
		"side", req.Side,
		"gross", breakdown.Gross.String(),
		"net_stake", breakdown.NetStake.String(),
		"price", price.String(),
		"new_price_yes", priceYes.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "bet_executed",
			MarketID: market.ID,
			PriceYes: priceYes.String(),
			PriceNo:  priceNo.String(),
			Side:     string(req.Side),
			Amount:   breakdown.Gross.String(),
		})
	}

	writeJSON(w, http.StatusOK, bet)
}

// refundDebit issues the compensating credit for a debit whose ledger
// commit failed. The refund key is derived from the bet id, so a crash
// between debit and refund is recoverable by replaying with the same key.
func (s *Service) refundDebit(ctx context.Context, betID, userID string, amount decimal.Decimal) {
	if _, err := s.wallet.Credit(ctx, userID, amount, wallet.RefundKey(betID)); err != nil {
		slog.Error("refund failed after aborted bet",
			"bet_id", betID,
			"user", userID,
			"amount", amount.String(),
			"err", err,
		)
	}
}

// routeFees credits the platform and creator fee shares. The credits are
// idempotency-keyed on the bet id; a failure here never unwinds the bet,
// it is logged and replayable.
func (s *Service) routeFees(ctx context.Context, bet *model.Bet, creatorID string) {
	if bet.PlatformFee.IsPositive() && s.platformAccount != "" {
		if _, err := s.wallet.Credit(ctx, s.platformAccount, bet.PlatformFee, wallet.PlatformFeeKey(bet.ID)); err != nil {
			slog.Error("platform fee credit failed", "bet_id", bet.ID, "err", err)
		}
	}
	if bet.CreatorFee.IsPositive() && creatorID != "" {
		if _, err := s.wallet.Credit(ctx, creatorID, bet.CreatorFee, wallet.CreatorFeeKey(bet.ID)); err != nil {
			slog.Error("creator fee credit failed", "bet_id", bet.ID, "err", err)
		}
	}
}

// GetBet handles GET /api/v1/bets/{betID}
func (s *Service) GetBet(w http.ResponseWriter, r *http.Request) {
	betID := chi.URLParam(r, "betID")

	bet, err := s.store.GetBet(r.Context(), betID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bet)
}

// ListUserBets handles GET /api/v1/users/{userID}/bets
func (s *Service) ListUserBets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	bets, err := s.store.GetBetsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list bets", http.StatusInternalServerError)
		return
	}
	if bets == nil {
		bets = []model.Bet{}
	}

	writeJSON(w, http.StatusOK, bets)
}

// ListMarketBets handles GET /api/v1/markets/{marketID}/bets
func (s *Service) ListMarketBets(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	if _, err := s.store.GetMarket(r.Context(), marketID); err != nil {
		writeDomainError(w, err)
		return
	}

	bets, err := s.store.GetBetsByMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "failed to list bets", http.StatusInternalServerError)
		return
	}
	if bets == nil {
		bets = []model.Bet{}
	}

	writeJSON(w, http.StatusOK, bets)
}
