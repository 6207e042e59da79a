package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/logger"
)

// Store is the persistence surface the engine needs: atomic single-document
// upsert, unique set membership, atomic counter increments, and the scan
// watermark. Implemented by the redis store; faked in tests.
type Store interface {
	// UpsertService inserts or merges one sender document. The merge
	// increments EmailCount by the update's NewCount, overwrites the
	// presentation and recency fields, and applies sticky link semantics.
	UpsertService(ctx context.Context, update domain.ServiceUpdate) (*domain.Service, error)

	// AddUserServices appends ids to the user's service set, ignoring
	// ones already present, and returns how many were newly added.
	AddUserServices(ctx context.Context, userID string, emailIDs []string) (int64, error)

	// IncrTotalServices adjusts the user's service counter by delta and
	// returns the new value. A zero delta reads the current value.
	IncrTotalServices(ctx context.Context, userID string, delta int64) (int64, error)

	// UserServices returns the user's services sorted newest-mail first.
	UserServices(ctx context.Context, userID string) ([]*domain.Service, error)

	// SetLastScan advances the user's scan watermark.
	SetLastScan(ctx context.Context, userID string, at time.Time) error
}

// upsertConcurrency bounds parallel service writes per run. Updates are
// already collapsed per sender, so no two writes touch the same document.
const upsertConcurrency = 8

// Reconciler persists one run's aggregated updates.
type Reconciler struct {
	store Store
	log   logger.Logger
}

// NewReconciler builds a Reconciler over the given store.
func NewReconciler(store Store, log logger.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// Reconcile upserts every ServiceUpdate, appends new ids to the user's set
// and bumps totalServices by exactly the number of new memberships. Writes
// are ordered services-first, user-counters-second: a crash in between
// leaves orphaned Service documents, which are recoverable by re-scan and
// collected by the janitor, never a lost Service.
//
// The watermark is NOT advanced here; that is a run-completion decision
// owned by the scan service.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, updates map[string]domain.ServiceUpdate) (domain.ScanResult, error) {
	ids, err := r.upsertAll(ctx, updates)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("upsert services: %w", err)
	}

	var added int64
	if len(ids) > 0 {
		added, err = r.store.AddUserServices(ctx, userID, ids)
		if err != nil {
			return domain.ScanResult{}, fmt.Errorf("append user services: %w", err)
		}
	}

	total, err := r.store.IncrTotalServices(ctx, userID, added)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("bump totalServices: %w", err)
	}

	services, err := r.store.UserServices(ctx, userID)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("load user services: %w", err)
	}

	if added > 0 {
		r.log.Info("reconciled scan run",
			logger.String("user_id", userID),
			logger.Int("updates", len(updates)),
			logger.Int64("new_services", added))
	}

	return domain.ScanResult{Services: services, TotalServices: total}, nil
}

// upsertAll writes all updates with bounded parallelism. Distinct EmailIDs
// never conflict, so order does not matter. The first error aborts the
// reconcile step; the caller treats that as "retry the whole scan".
func (r *Reconciler) upsertAll(ctx context.Context, updates map[string]domain.ServiceUpdate) ([]string, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		firstErr error
		ids      = make([]string, 0, len(updates))
	)

	sem := make(chan struct{}, upsertConcurrency)
	var wg sync.WaitGroup
	for _, upd := range updates {
		wg.Add(1)
		sem <- struct{}{}
		go func(upd domain.ServiceUpdate) {
			defer wg.Done()
			defer func() { <-sem }()

			svc, err := r.store.UpsertService(ctx, upd)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			ids = append(ids, svc.EmailID)
		}(upd)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return ids, nil
}
