package settle_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/omenmarket/settlement-engine/internal/model"
	"github.com/omenmarket/settlement-engine/internal/settle"
)

func decodeMarket(t *testing.T, body []byte) model.Market {
	t.Helper()
	var m model.Market
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode market: %v (%s)", err, body)
	}
	return m
}

func TestCreateMarket(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, "POST", "/api/v1/markets", settle.CreateMarketRequest{
		Title:      "Will the home team win?",
		CategoryID: "sports",
		CreatorID:  "creator1",
		EndDate:    openEndDate(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	m := decodeMarket(t, w.Body.Bytes())
	if m.ID == "" {
		t.Error("market must get an id")
	}
	// Default seed 2000 splits into 1000/1000, so both sides open at 0.5.
	if !m.YesPool.Equal(d(1000)) || !m.NoPool.Equal(d(1000)) {
		t.Errorf("seeded pools: got %s/%s, want 1000/1000", m.YesPool, m.NoPool)
	}
	if !m.PriceYes.Equal(d(0.5)) || !m.PriceNo.Equal(d(0.5)) {
		t.Errorf("opening prices: got %s/%s, want 0.5/0.5", m.PriceYes, m.PriceNo)
	}
	if m.Status != model.StatusOpen {
		t.Errorf("status: got %q, want open", m.Status)
	}
}

func TestCreateMarket_CustomSeed(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, "POST", "/api/v1/markets", settle.CreateMarketRequest{
		Title:         "Custom liquidity",
		CreatorID:     "creator1",
		EndDate:       openEndDate(),
		SeedLiquidity: d(500),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	m := decodeMarket(t, w.Body.Bytes())
	if !m.YesPool.Equal(d(250)) || !m.NoPool.Equal(d(250)) {
		t.Errorf("seeded pools: got %s/%s, want 250/250", m.YesPool, m.NoPool)
	}
}

func TestCreateMarket_Validation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		req  settle.CreateMarketRequest
	}{
		{"missing title", settle.CreateMarketRequest{CreatorID: "c", EndDate: openEndDate()}},
		{"missing creator", settle.CreateMarketRequest{Title: "t", EndDate: openEndDate()}},
		{"past end date", settle.CreateMarketRequest{Title: "t", CreatorID: "c", EndDate: pastEndDate()}},
	}
	for _, tc := range cases {
		w := doJSON(t, env.router, "POST", "/api/v1/markets", tc.req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

func TestGetPrice(t *testing.T) {
	env := newTestEnv(t)
	seedMarket(t, env.store, "m1", openEndDate())

	w := doJSON(t, env.router, "GET", "/api/v1/markets/m1/price", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var prices map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &prices); err != nil {
		t.Fatalf("decode prices: %v", err)
	}
	if prices["yes"] != "0.5" || prices["no"] != "0.5" {
		t.Errorf("prices: got %v, want 0.5/0.5", prices)
	}
}

func TestListMarkets_StatusFilter(t *testing.T) {
	env := newTestEnv(t)
	seedMarket(t, env.store, "m1", openEndDate())
	seedMarket(t, env.store, "m2", openEndDate())
	if w := resolveMarket(t, env, "m2", settle.ResolveMarketRequest{Outcome: model.SideNo}); w.Code != http.StatusOK {
		t.Fatalf("resolve: %d %s", w.Code, w.Body.String())
	}

	w := doJSON(t, env.router, "GET", "/api/v1/markets?status=open", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var markets []model.Market
	if err := json.Unmarshal(w.Body.Bytes(), &markets); err != nil {
		t.Fatalf("decode markets: %v", err)
	}
	if len(markets) != 1 || markets[0].ID != "m1" {
		t.Errorf("open filter: got %d markets", len(markets))
	}
}

func TestListMarketBets(t *testing.T) {
	env := newTestEnv(t)
	seedMarket(t, env.store, "m1", openEndDate())
	env.wallet.Fund("user1", d(1000))

	for i := 0; i < 3; i++ {
		if w := placeBet(t, env, settle.PlaceBetRequest{
			MarketID: "m1", UserID: "user1", Side: model.SideYes, GrossAmount: d(10),
		}); w.Code != http.StatusOK {
			t.Fatalf("place bet: %d %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(t, env.router, "GET", "/api/v1/markets/m1/bets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var bets []model.Bet
	if err := json.Unmarshal(w.Body.Bytes(), &bets); err != nil {
		t.Fatalf("decode bets: %v", err)
	}
	if len(bets) != 3 {
		t.Errorf("expected 3 bets, got %d", len(bets))
	}

	if w := doJSON(t, env.router, "GET", "/api/v1/markets/missing/bets", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing market, got %d", w.Code)
	}
}
