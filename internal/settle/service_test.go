package settle_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/fees"
	"github.com/omenmarket/settlement-engine/internal/model"
	"github.com/omenmarket/settlement-engine/internal/settle"
	"github.com/omenmarket/settlement-engine/internal/store"
	"github.com/omenmarket/settlement-engine/internal/wallet"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// testEnv bundles the service with its fakes and router.
type testEnv struct {
	svc    *settle.Service
	store  *store.MemoryStore
	wallet *wallet.MemoryWallet
	router chi.Router
}

// newTestEnv creates a test Service with in-memory store/wallet and a chi
// router wired like the production one.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ms := store.NewMemoryStore()
	mw := wallet.NewMemoryWallet()
	schedule, err := fees.NewSchedule(d(0.02), d(0.10))
	if err != nil {
		t.Fatalf("fee schedule: %v", err)
	}
	svc := settle.NewService(ms, mw, schedule, d(2000), "platform", nil)

	r := chi.NewRouter()
	r.Get("/api/v1/markets", svc.ListMarkets)
	r.Post("/api/v1/markets", svc.CreateMarket)
	r.Get("/api/v1/markets/{marketID}", svc.GetMarket)
	r.Get("/api/v1/markets/{marketID}/price", svc.GetPrice)
	r.Get("/api/v1/markets/{marketID}/bets", svc.ListMarketBets)
	r.Patch("/api/v1/markets/{marketID}/resolve", svc.ResolveMarket)
	r.Post("/api/v1/bets", svc.PlaceBet)
	r.Get("/api/v1/bets/{betID}", svc.GetBet)
	r.Get("/api/v1/users/{userID}/bets", svc.ListUserBets)
	r.Post("/api/v1/claims/{betID}", svc.ClaimBet)

	return &testEnv{svc: svc, store: ms, wallet: mw, router: r}
}

// seedMarket creates a test market directly in the store with 1000/1000
// pools (price 0.5/0.5).
func seedMarket(t *testing.T, ms *store.MemoryStore, id string, endDate time.Time) *model.Market {
	t.Helper()
	market := &model.Market{
		ID:          id,
		Title:       "Will the event happen?",
		CategoryID:  "sports",
		CreatorID:   "creator1",
		YesPool:     d(1000),
		NoPool:      d(1000),
		PriceYes:    d(0.5),
		PriceNo:     d(0.5),
		TotalVolume: decimal.Zero,
		Status:      model.StatusOpen,
		EndDate:     endDate,
		CreatedAt:   time.Now().UTC(),
	}
	if err := ms.CreateMarket(context.Background(), market); err != nil {
		t.Fatalf("failed to seed market: %v", err)
	}
	return market
}

func openEndDate() time.Time {
	return time.Now().Add(24 * time.Hour).UTC()
}

func pastEndDate() time.Time {
	return time.Now().Add(-time.Hour).UTC()
}

func doJSON(t *testing.T, router chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func placeBet(t *testing.T, env *testEnv, req settle.PlaceBetRequest) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, env.router, "POST", "/api/v1/bets", req)
}

func resolveMarket(t *testing.T, env *testEnv, marketID string, req settle.ResolveMarketRequest) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, env.router, "PATCH", "/api/v1/markets/"+marketID+"/resolve", req)
}

func claimBet(t *testing.T, env *testEnv, betID, userID string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, env.router, "POST", "/api/v1/claims/"+betID, settle.ClaimRequest{UserID: userID})
}

func decodeBet(t *testing.T, w *httptest.ResponseRecorder) model.Bet {
	t.Helper()
	var b model.Bet
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode bet: %v (%s)", err, w.Body.String())
	}
	return b
}

func decodePayout(t *testing.T, w *httptest.ResponseRecorder) model.PayoutResult {
	t.Helper()
	var p model.PayoutResult
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode payout result: %v (%s)", err, w.Body.String())
	}
	return p
}
