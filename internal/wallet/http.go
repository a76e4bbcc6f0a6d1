package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// HTTPClient talks to a wallet backend over HTTP. Every mutating request
// carries its idempotency key in the body and the X-Idempotency-Key header,
// is retried a bounded number of times on transport errors and 5xx
// responses, and is throttled by a client-side rate limiter so a retry
// storm cannot hammer the custodial backend.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewHTTPClient creates a wallet client for the given base URL.
// requestTimeout bounds each attempt; rps bounds the request rate.
func NewHTTPClient(baseURL string, requestTimeout time.Duration, rps float64) *HTTPClient {
	if rps <= 0 {
		rps = 20
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
		maxRetries: 3,
	}
}

type transferRequest struct {
	UserID         string          `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type transferResponse struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

func (c *HTTPClient) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/balances/"+userID, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: balance returned %d", ErrUnavailable, resp.StatusCode)
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return body.Balance, nil
}

func (c *HTTPClient) Debit(ctx context.Context, userID string, amount decimal.Decimal, idempotencyKey string) error {
	status, code, err := c.postTransfer(ctx, "/debit", userID, amount, idempotencyKey)
	if err != nil {
		return err
	}
	if code == http.StatusPaymentRequired {
		return ErrInsufficientFunds
	}
	// Any other rejection (frozen account, compliance hold) is not the
	// bettor's balance; report it as a backend failure.
	if status == StatusFailed {
		return fmt.Errorf("%w: debit rejected with status %q", ErrUnavailable, status)
	}
	return nil
}

func (c *HTTPClient) Credit(ctx context.Context, userID string, amount decimal.Decimal, idempotencyKey string) (Status, error) {
	status, _, err := c.postTransfer(ctx, "/credit", userID, amount, idempotencyKey)
	if err != nil {
		return StatusFailed, err
	}
	return status, nil
}

// postTransfer sends one transfer request with bounded retries. Retrying is
// safe only because the idempotency key pins the remote operation.
func (c *HTTPClient) postTransfer(ctx context.Context, path, userID string, amount decimal.Decimal, idempotencyKey string) (Status, int, error) {
	payload, err := json.Marshal(transferRequest{
		UserID:         userID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return StatusFailed, 0, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return StatusFailed, 0, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
			slog.Warn("retrying wallet transfer",
				"path", path,
				"idempotency_key", idempotencyKey,
				"attempt", attempt,
			)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return StatusFailed, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return StatusFailed, 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", idempotencyKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		var body transferResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("wallet returned %d", resp.StatusCode)
			continue
		case decodeErr != nil:
			lastErr = decodeErr
			continue
		default:
			return body.Status, resp.StatusCode, nil
		}
	}

	return StatusFailed, 0, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
