package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betpool/internal/logger"
	"betpool/internal/storage"

	"github.com/go-co-op/gocron/v2"
)

// MarketWorker periodically resolves predictions whose deadline passed
// without a manual resolution from the creator.
type MarketWorker struct {
	store    *storage.Store
	payouts  *PayoutService
	notifier *NotificationService
	interval time.Duration
	sched    gocron.Scheduler
}

// NewMarketWorker creates a new market worker
func NewMarketWorker(store *storage.Store, payouts *PayoutService, interval time.Duration) *MarketWorker {
	return &MarketWorker{
		store:    store,
		payouts:  payouts,
		interval: interval,
	}
}

// SetNotificationService sets the notification service for settlement broadcasts
func (w *MarketWorker) SetNotificationService(ns *NotificationService) {
	w.notifier = ns
}

// Start begins the periodic expiry scan.
func (w *MarketWorker) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	w.sched = sched

	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.ResolveExpired),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule expiry scan: %w", err)
	}

	sched.Start()
	logger.Debug(0, "market_worker_started", fmt.Sprintf("interval=%v", w.interval))

	// Run immediately on start
	w.ResolveExpired()
	return nil
}

// Stop stops the background worker
func (w *MarketWorker) Stop() {
	if w.sched != nil {
		if err := w.sched.Shutdown(); err != nil {
			logger.Error(0, "market_worker_shutdown", err)
		}
	}
	logger.Debug(0, "market_worker_stopped", "")
}

// ResolveExpired scans for expired open predictions and resolves each with
// the fallback outcome. One prediction's failure is logged and skipped; it
// never aborts the rest of the scan.
func (w *MarketWorker) ResolveExpired() {
	ctx := context.Background()

	expired, err := w.store.ExpiredOpen(ctx, time.Now())
	if err != nil {
		logger.Error(0, "market_worker_scan_failed", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	logger.Debug(0, "market_worker_scan", fmt.Sprintf("expired=%d", len(expired)))

	for i := range expired {
		p := &expired[i]

		outcome, err := w.fallbackOutcome(ctx, p)
		if err != nil {
			logger.Error(0, "market_worker_fallback_failed", fmt.Errorf("prediction %d: %w", p.ID, err))
			continue
		}

		settlement, err := w.payouts.Resolve(ctx, p.ID, outcome)
		if err != nil {
			// Losing the race to a manual resolution is expected, anything
			// else is a real failure.
			if errors.Is(err, storage.ErrInvalidState) {
				logger.Debug(0, "market_worker_already_resolved", fmt.Sprintf("prediction_id=%d", p.ID))
			} else {
				logger.Error(0, "market_worker_resolve_failed", fmt.Errorf("prediction %d: %w", p.ID, err))
			}
			continue
		}

		logger.Debug(0, "market_worker_resolved", fmt.Sprintf("prediction_id=%d outcome=%s payouts=%d", p.ID, outcome, settlement.PayoutCount))

		if w.notifier != nil {
			w.notifier.BroadcastSettlement(p, settlement)
		}
	}
}

// fallbackOutcome picks the option with the strictly larger staked pool.
// A tie, or no bets at all, voids the prediction with NO_RESULT.
func (w *MarketWorker) fallbackOutcome(ctx context.Context, p *storage.Prediction) (string, error) {
	poolA, poolB, err := w.store.PoolTotals(ctx, p.ID)
	if err != nil {
		return "", err
	}
	switch {
	case poolA > poolB:
		return p.OptionA, nil
	case poolB > poolA:
		return p.OptionB, nil
	default:
		return storage.OutcomeNoResult, nil
	}
}
