package settle

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/metrics"
	"github.com/omenmarket/settlement-engine/internal/model"
	"github.com/omenmarket/settlement-engine/internal/pricing"
	"github.com/omenmarket/settlement-engine/internal/wallet"
)

// ClaimRequest is the JSON body for POST /claims/{betID}.
type ClaimRequest struct {
	UserID string `json:"user_id"`
}

// ClaimBet handles POST /api/v1/claims/{betID}
//
// The claimed flag and frozen payout are committed before the external
// credit is attempted, guarded by the store's conditional update so N
// concurrent claimers produce exactly one transfer. Losing bets claim as a
// fast no-op success. If the credit does not confirm, the transfer
// sub-state records it for the sweeper and the caller gets a distinct
// pending error rather than a silent success.
func (s *Service) ClaimBet(w http.ResponseWriter, r *http.Request) {
	betID := chi.URLParam(r, "betID")

	var req ClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	bet, err := s.store.GetBet(ctx, betID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bet.UserID != req.UserID {
		writeDomainError(w, ErrForbidden)
		return
	}

	market, err := s.store.GetMarket(ctx, bet.MarketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if market.Status != model.StatusResolved {
		writeDomainError(w, ErrNotResolved)
		return
	}

	won := bet.Won(market.Outcome)
	payout := decimal.Zero
	initialState := model.TransferConfirmed // losing claims transfer nothing
	if won {
		payout = pricing.Payout(bet.NetStake, bet.Price)
		initialState = model.TransferPending
	}

	// Win the claimed flag before touching the wallet. Losers of this race
	// get AlreadyClaimed and must never trigger a transfer.
	if err := s.store.ClaimBet(ctx, betID, payout, initialState, time.Now().UTC()); err != nil {
		metrics.ClaimsTotal.WithLabelValues("conflict").Inc()
		writeDomainError(w, err)
		return
	}

	if !won {
		metrics.ClaimsTotal.WithLabelValues("lost").Inc()
		slog.Info("losing bet claimed", "bet_id", betID, "market_id", market.ID, "user", req.UserID)
		writeJSON(w, http.StatusOK, model.PayoutResult{
			BetID:         betID,
			MarketID:      market.ID,
			UserID:        req.UserID,
			Won:           false,
			Payout:        payout,
			TransferState: model.TransferConfirmed,
		})
		return
	}

	state, err := s.settleTransfer(ctx, betID, req.UserID, payout)

	result := model.PayoutResult{
		BetID:         betID,
		MarketID:      market.ID,
		UserID:        req.UserID,
		Won:           true,
		Payout:        payout,
		TransferState: state,
	}

	switch {
	case err != nil:
		metrics.ClaimsTotal.WithLabelValues("pending").Inc()
		writeDomainError(w, err)
	case state == model.TransferSent:
		metrics.ClaimsTotal.WithLabelValues("won").Inc()
		writeJSON(w, http.StatusAccepted, result)
	default:
		metrics.ClaimsTotal.WithLabelValues("won").Inc()
		slog.Info("payout settled",
			"bet_id", betID,
			"market_id", market.ID,
			"user", req.UserID,
			"payout", payout.String(),
		)
		writeJSON(w, http.StatusOK, result)
	}
}

// settleTransfer drives the external credit for a winning claim and
// records the resulting transfer sub-state. The payout key is stable per
// bet, so retries after a timeout can never issue a second credit.
func (s *Service) settleTransfer(ctx context.Context, betID, userID string, payout decimal.Decimal) (string, error) {
	status, err := s.wallet.Credit(ctx, userID, payout, wallet.PayoutKey(betID))
	if err != nil {
		metrics.TransferFailuresTotal.Inc()
		if stateErr := s.store.SetTransferState(ctx, betID, model.TransferFailed); stateErr != nil {
			slog.Error("failed to record transfer state", "bet_id", betID, "err", stateErr)
		}
		slog.Error("payout transfer failed, queued for retry", "bet_id", betID, "err", err)
		return model.TransferFailed, ErrSettlementPending
	}

	switch status {
	case wallet.StatusOK:
		if err := s.store.SetTransferState(ctx, betID, model.TransferConfirmed); err != nil {
			slog.Error("failed to record transfer state", "bet_id", betID, "err", err)
		}
		return model.TransferConfirmed, nil
	case wallet.StatusPending:
		if err := s.store.SetTransferState(ctx, betID, model.TransferSent); err != nil {
			slog.Error("failed to record transfer state", "bet_id", betID, "err", err)
		}
		return model.TransferSent, nil
	default:
		metrics.TransferFailuresTotal.Inc()
		if err := s.store.SetTransferState(ctx, betID, model.TransferFailed); err != nil {
			slog.Error("failed to record transfer state", "bet_id", betID, "err", err)
		}
		return model.TransferFailed, ErrSettlementPending
	}
}
