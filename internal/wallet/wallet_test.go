package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- MemoryWallet tests ---

func TestMemoryWallet_DebitIdempotent(t *testing.T) {
	w := NewMemoryWallet()
	w.Fund("user1", d(100))
	ctx := context.Background()

	if err := w.Debit(ctx, "user1", d(40), DebitKey("bet-1")); err != nil {
		t.Fatalf("debit: %v", err)
	}
	// Replay with the same key must not move money again.
	if err := w.Debit(ctx, "user1", d(40), DebitKey("bet-1")); err != nil {
		t.Fatalf("replayed debit: %v", err)
	}

	balance, _ := w.Balance(ctx, "user1")
	if !balance.Equal(d(60)) {
		t.Errorf("balance after replayed debit: got %s, want 60", balance)
	}
}

func TestMemoryWallet_DebitInsufficient(t *testing.T) {
	w := NewMemoryWallet()
	w.Fund("user1", d(10))

	err := w.Debit(context.Background(), "user1", d(40), DebitKey("bet-1"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, _ := w.Balance(context.Background(), "user1")
	if !balance.Equal(d(10)) {
		t.Errorf("failed debit must not change balance, got %s", balance)
	}
}

func TestMemoryWallet_CreditIdempotent(t *testing.T) {
	w := NewMemoryWallet()
	ctx := context.Background()

	status, err := w.Credit(ctx, "user1", d(176), PayoutKey("bet-1"))
	if err != nil || status != StatusOK {
		t.Fatalf("credit: status=%s err=%v", status, err)
	}
	status, err = w.Credit(ctx, "user1", d(176), PayoutKey("bet-1"))
	if err != nil || status != StatusOK {
		t.Fatalf("replayed credit: status=%s err=%v", status, err)
	}

	if w.CreditCalls != 1 {
		t.Errorf("expected exactly one applied credit, got %d", w.CreditCalls)
	}
	balance, _ := w.Balance(ctx, "user1")
	if !balance.Equal(d(176)) {
		t.Errorf("balance after replayed credit: got %s, want 176", balance)
	}
}

func TestMemoryWallet_FailedCreditRetries(t *testing.T) {
	w := NewMemoryWallet()
	ctx := context.Background()

	w.CreditMode = StatusFailed
	if _, err := w.Credit(ctx, "user1", d(176), PayoutKey("bet-1")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// Backend recovers; the same key must now land exactly once.
	w.CreditMode = StatusOK
	if status, err := w.Credit(ctx, "user1", d(176), PayoutKey("bet-1")); err != nil || status != StatusOK {
		t.Fatalf("retried credit: status=%s err=%v", status, err)
	}
	if w.CreditCalls != 1 {
		t.Errorf("expected exactly one applied credit, got %d", w.CreditCalls)
	}
}

// --- HTTPClient tests ---

func TestHTTPClient_DebitSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Idempotency-Key")
		json.NewEncoder(w).Encode(transferResponse{Status: StatusOK})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, 100)
	if err := c.Debit(context.Background(), "user1", d(50), DebitKey("bet-1")); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if gotKey != "debit:bet-1" {
		t.Errorf("idempotency key header: got %q, want %q", gotKey, "debit:bet-1")
	}
}

func TestHTTPClient_DebitInsufficient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(transferResponse{Status: StatusFailed, Error: "insufficient"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, 100)
	err := c.Debit(context.Background(), "user1", d(50), DebitKey("bet-1"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestHTTPClient_DebitRejectedIsNotInsufficientFunds(t *testing.T) {
	// A 200 response with a failed status means the backend rejected the
	// debit for some other reason (frozen account, compliance hold); the
	// bettor must not be told their balance is short.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transferResponse{Status: StatusFailed, Error: "account frozen"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, 100)
	err := c.Debit(context.Background(), "user1", d(50), DebitKey("bet-1"))
	if errors.Is(err, ErrInsufficientFunds) {
		t.Error("rejected debit must not map to ErrInsufficientFunds")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(transferResponse{Status: StatusOK})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, 100)
	status, err := c.Credit(context.Background(), "user1", d(176), PayoutKey("bet-1"))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if status != StatusOK {
		t.Errorf("expected StatusOK after retries, got %s", status)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestHTTPClient_UnavailableAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, 100)
	_, err := c.Credit(context.Background(), "user1", d(176), PayoutKey("bet-1"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPClient_Balance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/balances/user1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(balanceResponse{Balance: d(250.75)})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, 100)
	balance, err := c.Balance(context.Background(), "user1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(d(250.75)) {
		t.Errorf("balance: got %s, want 250.75", balance)
	}
}
