// Package scheduler runs background maintenance over the store.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/logger"
)

const (
	// DefaultJanitorThreshold is the age after which an unreferenced
	// service document is deleted.
	DefaultJanitorThreshold = 24 * time.Hour
	// DefaultJanitorInterval is the pause between collection runs.
	DefaultJanitorInterval = 6 * time.Hour
)

// Store is the surface the janitor sweeps.
type Store interface {
	ServiceIDs(ctx context.Context) ([]string, error)
	ReferencedServiceIDs(ctx context.Context) (map[string]bool, error)
	GetService(ctx context.Context, emailID string) (*domain.Service, error)
	DeleteService(ctx context.Context, emailID string) error
}

// Janitor collects orphaned service documents. Scans write services before
// the user's membership set, so a crash in between leaves documents no user
// references; the next scan re-adopts them, and the janitor deletes the ones
// that stayed orphaned past the threshold.
type Janitor struct {
	store     Store
	logger    logger.Logger
	interval  time.Duration
	threshold time.Duration
	stopCh    chan struct{}
	now       func() time.Time
}

// NewJanitor creates a janitor. Zero interval/threshold fall back to the
// package defaults.
func NewJanitor(store Store, log logger.Logger, interval, threshold time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	if threshold <= 0 {
		threshold = DefaultJanitorThreshold
	}
	return &Janitor{
		store:     store,
		logger:    log,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start begins periodic collection. The first sweep runs immediately.
func (j *Janitor) Start(ctx context.Context) error {
	if err := j.Collect(ctx); err != nil {
		j.logger.Warn("initial orphan collection failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(j.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := j.Collect(ctx); err != nil {
					j.logger.Error("orphan collection failed",
						logger.Error(err))
				}
			case <-j.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the janitor.
func (j *Janitor) Stop() {
	close(j.stopCh)
}

// Collect deletes service documents that no user references and that have
// not been touched within the threshold. Recently written orphans are left
// alone: they may belong to a scan whose membership write is still in
// flight.
func (j *Janitor) Collect(ctx context.Context) error {
	ids, err := j.store.ServiceIDs(ctx)
	if err != nil {
		return err
	}
	referenced, err := j.store.ReferencedServiceIDs(ctx)
	if err != nil {
		return err
	}

	cutoff := j.now().Add(-j.threshold)
	deleted := 0

	for _, id := range ids {
		if referenced[id] {
			continue
		}
		svc, err := j.store.GetService(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrServiceNotFound) {
				continue
			}
			j.logger.Warn("skipping orphan candidate, read failed",
				logger.String("service", id),
				logger.Error(err))
			continue
		}
		if svc.UpdatedAt.After(cutoff) {
			continue
		}
		if err := j.store.DeleteService(ctx, id); err != nil {
			j.logger.Warn("failed to delete orphaned service",
				logger.String("service", id),
				logger.Error(err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		j.logger.Info("orphan collection completed",
			logger.Int("scanned", len(ids)),
			logger.Int("deleted", deleted))
	} else {
		j.logger.Debug("no orphaned services to collect")
	}
	return nil
}
