package settle

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/metrics"
	"github.com/omenmarket/settlement-engine/internal/model"
	"github.com/omenmarket/settlement-engine/internal/pricing"
)

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Title      string    `json:"title"`
	CategoryID string    `json:"category_id"`
	CreatorID  string    `json:"creator_id"`
	EndDate    time.Time `json:"end_date"`

	// SeedLiquidity overrides the engine default; 0 → default.
	SeedLiquidity decimal.Decimal `json:"seed_liquidity"`

	// Optional per-market fee overrides.
	PlatformFeeRate *decimal.Decimal `json:"platform_fee_rate,omitempty"`
	CreatorFeeRate  *decimal.Decimal `json:"creator_fee_rate,omitempty"`
}

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		writeError(w, "title is required", http.StatusBadRequest)
		return
	}
	if req.CreatorID == "" {
		writeError(w, "creator_id is required", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	if !req.EndDate.After(now) {
		writeError(w, "end_date must be in the future", http.StatusBadRequest)
		return
	}

	seed := req.SeedLiquidity
	if seed.LessThanOrEqual(decimal.Zero) {
		seed = s.seedLiquidity
	}
	yesPool, noPool, err := pricing.SeedPools(seed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	priceYes, priceNo, err := pricing.Price(yesPool, noPool)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	market := &model.Market{
		ID:              uuid.New().String(),
		Title:           req.Title,
		CategoryID:      req.CategoryID,
		CreatorID:       req.CreatorID,
		YesPool:         yesPool,
		NoPool:          noPool,
		PriceYes:        priceYes,
		PriceNo:         priceNo,
		TotalVolume:     decimal.Zero,
		Status:          model.StatusOpen,
		EndDate:         req.EndDate.UTC(),
		CreatedAt:       now,
		PlatformFeeRate: req.PlatformFeeRate,
		CreatorFeeRate:  req.CreatorFeeRate,
	}

	if err := s.store.CreateMarket(r.Context(), market); err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.OpenMarkets.Inc()
	slog.Info("market created",
		"id", market.ID,
		"title", market.Title,
		"creator", market.CreatorID,
		"seed", seed.String(),
		"end_date", market.EndDate,
	)

	writeJSON(w, http.StatusCreated, market)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	market, err := s.store.GetMarket(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetPrice handles GET /api/v1/markets/{marketID}/price
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	market, err := s.store.GetMarket(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]decimal.Decimal{
		"yes": market.PriceYes,
		"no":  market.PriceNo,
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	// Optional filter by status query parameter.
	if status := r.URL.Query().Get("status"); status != "" {
		var filtered []model.Market
		for _, m := range markets {
			if m.Status == status {
				filtered = append(filtered, m)
			}
		}
		if filtered == nil {
			filtered = []model.Market{}
		}
		markets = filtered
	}

	writeJSON(w, http.StatusOK, markets)
}
