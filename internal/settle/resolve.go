package settle

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/omenmarket/settlement-engine/internal/metrics"
	"github.com/omenmarket/settlement-engine/internal/model"
)

// ResolveMarketRequest is the JSON body for PATCH /markets/{id}/resolve.
// The endpoint is privileged; authentication is enforced upstream.
type ResolveMarketRequest struct {
	Outcome model.Side `json:"outcome"`
	Note    string     `json:"note,omitempty"`
}

// ResolveMarket handles PATCH /api/v1/markets/{marketID}/resolve
//
// The transition is a single conditional update in the store: of two
// concurrent resolvers exactly one wins, the other sees AlreadyResolved.
// A second resolve with a different outcome is rejected, never merged.
// Payouts are not computed here; each bet keeps its locked price and is
// settled lazily at claim time, so resolution cost does not grow with the
// number of bets.
func (s *Service) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req ResolveMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Outcome.Valid() {
		writeDomainError(w, ErrInvalidOutcome)
		return
	}

	market, err := s.store.ResolveMarket(r.Context(), marketID, req.Outcome, req.Note, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.ResolutionsTotal.WithLabelValues(string(req.Outcome)).Inc()
	metrics.OpenMarkets.Dec()

	slog.Info("market resolved",
		"market_id", market.ID,
		"outcome", req.Outcome,
		"yes_pool", market.YesPool.String(),
		"no_pool", market.NoPool.String(),
		"total_volume", market.TotalVolume.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "market_resolved",
			MarketID: market.ID,
			Outcome:  string(req.Outcome),
		})
	}

	writeJSON(w, http.StatusOK, market)
}
