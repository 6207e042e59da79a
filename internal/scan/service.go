// Package scan implements the inbox subscription discovery engine: budgeted
// paginated retrieval, unsubscribe-signal extraction, per-sender aggregation
// and store reconciliation.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trimbox/trimbox/internal/domain"
	gc "github.com/trimbox/trimbox/internal/gmail"
	"github.com/trimbox/trimbox/internal/logger"
)

// HandleProvider yields an authenticated mail-API handle for a user,
// refreshing the delegated credential when needed.
type HandleProvider interface {
	Handle(ctx context.Context, user *domain.User) (gc.Client, error)
}

// Config tunes one scan service instance.
type Config struct {
	// Budget is the wall-clock allowance for pagination per run.
	Budget time.Duration
	Pager  PagerConfig
}

// Service orchestrates a full scan run: credential, pager, extractor,
// aggregator, reconciler. Runs are idempotent: scanning twice with no new
// mail changes neither counters nor membership.
type Service struct {
	provider   HandleProvider
	store      Store
	pager      *Pager
	reconciler *Reconciler
	log        logger.Logger
	budget     time.Duration
	flight     *flightGuard
	now        func() time.Time
}

// NewService wires the engine together.
func NewService(provider HandleProvider, store Store, cfg Config, log logger.Logger) *Service {
	if cfg.Budget <= 0 {
		cfg.Budget = 45 * time.Second
	}
	return &Service{
		provider:   provider,
		store:      store,
		pager:      NewPager(cfg.Pager, log),
		reconciler: NewReconciler(store, log),
		log:        log,
		budget:     cfg.Budget,
		flight:     newFlightGuard(),
		now:        time.Now,
	}
}

// Run executes one scan for the user. Error cases:
//
//   - domain.ErrScanInProgress: another run holds the user's slot.
//   - domain.ErrReauthRequired: credential refresh failed; nothing fetched.
//   - domain.ErrUpstream: a list call failed mid-run. Signals gathered from
//     prior pages are still reconciled before the error is surfaced; the
//     watermark does not advance so a retry re-covers the window.
//
// On success (including budget-bounded partial runs) the watermark advances
// to "now" exactly once. A partial run therefore trades completeness for
// bounded latency: mail between the last processed page and "now" is
// skipped, which is the documented policy.
func (s *Service) Run(ctx context.Context, user *domain.User) (domain.ScanResult, error) {
	if !s.flight.acquire(user.ID) {
		return domain.ScanResult{}, domain.ErrScanInProgress
	}
	defer s.flight.release(user.ID)

	started := s.now()
	client, err := s.provider.Handle(ctx, user)
	if err != nil {
		return domain.ScanResult{}, err
	}

	messages, partial, fetchErr := s.pager.Fetch(ctx, client, user.LastScanDate, s.budget)
	if fetchErr != nil && !errors.Is(fetchErr, domain.ErrUpstream) {
		return domain.ScanResult{}, fetchErr
	}

	signals := make([]domain.UnsubscribeSignal, 0, len(messages))
	for _, msg := range messages {
		if sig, ok := Extract(msg); ok {
			signals = append(signals, sig)
		}
	}
	updates := Aggregate(signals)

	result, err := s.reconciler.Reconcile(ctx, user.ID, updates)
	if err != nil {
		return domain.ScanResult{}, err
	}
	result.Partial = partial

	if fetchErr != nil {
		// Partial results are persisted, but the run failed: keep the
		// old watermark so a retry re-covers the window.
		s.log.Warn("scan aborted upstream, partial results reconciled",
			logger.String("user_id", user.ID),
			logger.Int("messages", len(messages)),
			logger.Error(fetchErr))
		return result, fetchErr
	}

	scannedAt := s.now()
	if err := s.store.SetLastScan(ctx, user.ID, scannedAt); err != nil {
		return domain.ScanResult{}, fmt.Errorf("advance watermark: %w", err)
	}
	user.LastScanDate = scannedAt

	s.log.Info("scan completed",
		logger.String("user_id", user.ID),
		logger.Int("messages", len(messages)),
		logger.Int("signals", len(signals)),
		logger.Int("senders", len(updates)),
		logger.Duration("elapsed", s.now().Sub(started)),
		logger.Bool("partial", partial))
	return result, nil
}
