package settle_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/omenmarket/settlement-engine/internal/model"
	"github.com/omenmarket/settlement-engine/internal/settle"
	"github.com/omenmarket/settlement-engine/internal/wallet"
)

// placeAndResolve seeds a market, places one bet and resolves the market,
// returning the bet. With 1000/1000 pools and a 100 gross stake the net is
// 88 at price 0.5, so a winning claim pays 176.
func placeAndResolve(t *testing.T, env *testEnv, side, outcome model.Side) model.Bet {
	t.Helper()
	seedMarket(t, env.store, "m1", openEndDate())
	env.wallet.Fund("user1", d(1000))

	w := placeBet(t, env, settle.PlaceBetRequest{
		MarketID: "m1", UserID: "user1", Side: side, GrossAmount: d(100),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("place bet: %d %s", w.Code, w.Body.String())
	}
	bet := decodeBet(t, w)

	if w := resolveMarket(t, env, "m1", settle.ResolveMarketRequest{Outcome: outcome}); w.Code != http.StatusOK {
		t.Fatalf("resolve: %d %s", w.Code, w.Body.String())
	}
	return bet
}

func TestClaimBet_Winning(t *testing.T) {
	env := newTestEnv(t)
	bet := placeAndResolve(t, env, model.SideYes, model.SideYes)

	w := claimBet(t, env, bet.ID, "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	result := decodePayout(t, w)
	if !result.Won {
		t.Error("expected winning claim")
	}
	if !result.Payout.Equal(d(176)) {
		t.Errorf("payout: got %s, want 176", result.Payout)
	}
	if result.TransferState != model.TransferConfirmed {
		t.Errorf("transfer state: got %q, want confirmed", result.TransferState)
	}

	// 1000 funded, 100 debited, 176 credited.
	balance, _ := env.wallet.Balance(context.Background(), "user1")
	if !balance.Equal(d(1076)) {
		t.Errorf("balance: got %s, want 1076", balance)
	}

	stored, _ := env.store.GetBet(context.Background(), bet.ID)
	if !stored.Claimed {
		t.Error("bet must be flagged claimed")
	}
	if !stored.Payout.Equal(d(176)) {
		t.Errorf("frozen payout: got %s, want 176", stored.Payout)
	}
	if stored.ClaimedAt == nil {
		t.Error("claimed_at must be set")
	}
}

func TestClaimBet_SecondClaimRejected(t *testing.T) {
	env := newTestEnv(t)
	bet := placeAndResolve(t, env, model.SideYes, model.SideYes)
	base := env.wallet.CreditCalls // fee routing from the bet itself

	if w := claimBet(t, env, bet.ID, "user1"); w.Code != http.StatusOK {
		t.Fatalf("first claim: %d %s", w.Code, w.Body.String())
	}
	w := claimBet(t, env, bet.ID, "user1")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on second claim, got %d", w.Code)
	}

	if got := env.wallet.CreditCalls - base; got != 1 {
		t.Errorf("payout credited %d times, want exactly 1", got)
	}
	balance, _ := env.wallet.Balance(context.Background(), "user1")
	if !balance.Equal(d(1076)) {
		t.Errorf("balance after rejected replay: got %s, want 1076", balance)
	}
}

func TestClaimBet_Losing(t *testing.T) {
	env := newTestEnv(t)
	bet := placeAndResolve(t, env, model.SideNo, model.SideYes)
	base := env.wallet.CreditCalls

	w := claimBet(t, env, bet.ID, "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	result := decodePayout(t, w)
	if result.Won {
		t.Error("expected losing claim")
	}
	if !result.Payout.IsZero() {
		t.Errorf("losing payout must be zero, got %s", result.Payout)
	}
	if got := env.wallet.CreditCalls - base; got != 0 {
		t.Errorf("losing claim must not credit, got %d calls", got)
	}

	// The losing claim is still recorded, so it cannot be replayed.
	if w := claimBet(t, env, bet.ID, "user1"); w.Code != http.StatusConflict {
		t.Errorf("expected 409 on replayed losing claim, got %d", w.Code)
	}
}

func TestClaimBet_NotOwner(t *testing.T) {
	env := newTestEnv(t)
	bet := placeAndResolve(t, env, model.SideYes, model.SideYes)
	base := env.wallet.CreditCalls

	w := claimBet(t, env, bet.ID, "intruder")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if env.wallet.CreditCalls != base {
		t.Error("foreign claim must not credit")
	}
}

func TestClaimBet_NotResolved(t *testing.T) {
	env := newTestEnv(t)
	seedMarket(t, env.store, "m1", openEndDate())
	env.wallet.Fund("user1", d(1000))

	w := placeBet(t, env, settle.PlaceBetRequest{
		MarketID: "m1", UserID: "user1", Side: model.SideYes, GrossAmount: d(100),
	})
	bet := decodeBet(t, w)

	if w := claimBet(t, env, bet.ID, "user1"); w.Code != http.StatusConflict {
		t.Errorf("expected 409 before resolution, got %d", w.Code)
	}
}

func TestClaimBet_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := claimBet(t, env, "missing", "user1")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestClaimBet_ConcurrentClaimsPayOnce(t *testing.T) {
	env := newTestEnv(t)
	bet := placeAndResolve(t, env, model.SideYes, model.SideYes)
	base := env.wallet.CreditCalls

	const n = 16
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- claimBet(t, env, bet.ID, "user1").Code
		}()
	}
	wg.Wait()
	close(codes)

	var ok, conflict int
	for code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if ok != 1 || conflict != n-1 {
		t.Errorf("got %d successes and %d conflicts, want 1 and %d", ok, conflict, n-1)
	}
	if got := env.wallet.CreditCalls - base; got != 1 {
		t.Errorf("payout credited %d times, want exactly 1", got)
	}
}

func TestClaimBet_PendingTransfer(t *testing.T) {
	env := newTestEnv(t)
	bet := placeAndResolve(t, env, model.SideYes, model.SideYes)
	env.wallet.CreditMode = wallet.StatusPending

	w := claimBet(t, env, bet.ID, "user1")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for in-flight transfer, got %d: %s", w.Code, w.Body.String())
	}
	result := decodePayout(t, w)
	if result.TransferState != model.TransferSent {
		t.Errorf("transfer state: got %q, want sent", result.TransferState)
	}

	stored, _ := env.store.GetBet(context.Background(), bet.ID)
	if stored.TransferState != model.TransferSent {
		t.Errorf("stored transfer state: got %q, want sent", stored.TransferState)
	}
}

func TestClaimBet_CrashBeforeCreditSweptLater(t *testing.T) {
	env := newTestEnv(t)
	bet := placeAndResolve(t, env, model.SideYes, model.SideYes)
	base := env.wallet.CreditCalls

	// Simulate a crash after the claim committed but before the first
	// credit attempt: the bet is durably claimed with the transfer still
	// pending and the wallet was never called.
	if err := env.store.ClaimBet(context.Background(), bet.ID, d(176), model.TransferPending, time.Now().UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Re-claiming cannot recover it; the sweeper must.
	if w := claimBet(t, env, bet.ID, "user1"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-claim, got %d", w.Code)
	}

	sweeper := settle.NewSweeper(env.store, env.wallet, context.Background())
	sweeper.Sweep(context.Background())

	stored, _ := env.store.GetBet(context.Background(), bet.ID)
	if stored.TransferState != model.TransferConfirmed {
		t.Errorf("swept transfer state: got %q, want confirmed", stored.TransferState)
	}
	if got := env.wallet.CreditCalls - base; got != 1 {
		t.Errorf("payout credited %d times, want exactly 1", got)
	}
	balance, _ := env.wallet.Balance(context.Background(), "user1")
	if !balance.Equal(d(1076)) {
		t.Errorf("balance after sweep: got %s, want 1076", balance)
	}
}

func TestClaimBet_FailedTransferSweptLater(t *testing.T) {
	env := newTestEnv(t)
	bet := placeAndResolve(t, env, model.SideYes, model.SideYes)
	base := env.wallet.CreditCalls
	env.wallet.CreditMode = wallet.StatusFailed

	w := claimBet(t, env, bet.ID, "user1")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for failed transfer, got %d: %s", w.Code, w.Body.String())
	}

	stored, _ := env.store.GetBet(context.Background(), bet.ID)
	if !stored.Claimed {
		t.Error("claim must stick even when the transfer fails")
	}
	if stored.TransferState != model.TransferFailed {
		t.Errorf("stored transfer state: got %q, want failed", stored.TransferState)
	}

	// The wallet comes back and the sweeper retries the credit.
	env.wallet.CreditMode = wallet.StatusOK
	sweeper := settle.NewSweeper(env.store, env.wallet, context.Background())
	sweeper.Sweep(context.Background())

	stored, _ = env.store.GetBet(context.Background(), bet.ID)
	if stored.TransferState != model.TransferConfirmed {
		t.Errorf("swept transfer state: got %q, want confirmed", stored.TransferState)
	}
	if got := env.wallet.CreditCalls - base; got != 1 {
		t.Errorf("payout credited %d times, want exactly 1", got)
	}
	balance, _ := env.wallet.Balance(context.Background(), "user1")
	if !balance.Equal(d(1076)) {
		t.Errorf("balance after sweep: got %s, want 1076", balance)
	}
}
