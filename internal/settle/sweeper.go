package settle

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/omenmarket/settlement-engine/internal/metrics"
	"github.com/omenmarket/settlement-engine/internal/model"
	"github.com/omenmarket/settlement-engine/internal/store"
	"github.com/omenmarket/settlement-engine/internal/wallet"
)

// Sweeper periodically retries claimed bets whose external transfer is not
// yet confirmed: pending (crashed before the first credit attempt), sent,
// or failed. Each retry reuses the bet's payout idempotency key, so a
// transfer that actually landed on the wallet side is confirmed rather
// than re-credited.
type Sweeper struct {
	store     store.Store
	wallet    wallet.Service
	cron      *cron.Cron
	batchSize int
	parallel  int
	baseCtx   context.Context
}

// NewSweeper creates a sweeper bound to baseCtx.
func NewSweeper(st store.Store, w wallet.Service, baseCtx context.Context) *Sweeper {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Sweeper{
		store:     st,
		wallet:    w,
		cron:      cron.New(),
		batchSize: 100,
		parallel:  4,
		baseCtx:   baseCtx,
	}
}

// Start schedules the sweep. schedule uses cron syntax ("@every 1m").
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(s.baseCtx) }); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("settlement sweeper started", "schedule", schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("settlement sweeper stopped")
}

// Sweep retries one batch of unsettled transfers.
func (s *Sweeper) Sweep(ctx context.Context) {
	bets, err := s.store.ListUnsettledBets(ctx, s.batchSize)
	if err != nil {
		slog.Error("sweep: listing unsettled bets failed", "err", err)
		return
	}
	if len(bets) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)

	for _, bet := range bets {
		bet := bet
		g.Go(func() error {
			s.retryTransfer(ctx, &bet)
			return nil
		})
	}
	g.Wait()
}

func (s *Sweeper) retryTransfer(ctx context.Context, bet *model.Bet) {
	metrics.TransferRetriesTotal.Inc()

	status, err := s.wallet.Credit(ctx, bet.UserID, bet.Payout, wallet.PayoutKey(bet.ID))
	if err != nil {
		metrics.TransferFailuresTotal.Inc()
		slog.Warn("sweep: transfer retry failed",
			"bet_id", bet.ID,
			"user", bet.UserID,
			"payout", bet.Payout.String(),
			"err", err,
		)
		return
	}

	var newState string
	switch status {
	case wallet.StatusOK:
		newState = model.TransferConfirmed
	case wallet.StatusPending:
		newState = model.TransferSent
	default:
		metrics.TransferFailuresTotal.Inc()
		return // stays failed, retried next sweep
	}
	if err := s.store.SetTransferState(ctx, bet.ID, newState); err != nil {
		slog.Error("sweep: failed to record transfer state", "bet_id", bet.ID, "err", err)
		return
	}

	if newState == model.TransferConfirmed {
		slog.Info("sweep: transfer confirmed",
			"bet_id", bet.ID,
			"user", bet.UserID,
			"payout", bet.Payout.String(),
		)
	}
}
