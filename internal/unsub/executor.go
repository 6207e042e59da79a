// Package unsub executes unsubscribe actions against a sender's advertised
// List-Unsubscribe method.
package unsub

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/logger"
	"github.com/trimbox/trimbox/internal/utils"
)

// oneClickBody is the fixed form body mandated by RFC 8058 for one-click
// unsubscribe POSTs.
const oneClickBody = "List-Unsubscribe=One-Click"

const defaultPostTimeout = 10 * time.Second

// Store is the persistence surface the executor needs.
type Store interface {
	GetService(ctx context.Context, emailID string) (*domain.Service, error)
	OwnsService(ctx context.Context, userID, emailID string) (bool, error)
	DeleteService(ctx context.Context, emailID string) error
	RemoveUserService(ctx context.Context, userID, emailID string) error
	IncrTotalServices(ctx context.Context, userID string, delta int64) (int64, error)
	IncrUnsubscribed(ctx context.Context, userID string, delta int64) (int64, error)
}

// Outcome reports how the unsubscribe completed. RedirectURL is set when the
// caller must open the sender's page out-of-band to finish; empty when the
// one-click POST already completed the action.
type Outcome struct {
	Message     string `json:"message"`
	RedirectURL string `json:"redirectionUrl,omitempty"`
}

// Executor performs unsubscribe actions. On success the Service document is
// deleted and the user's counters adjusted: a later scan re-discovers the
// sender as if new.
type Executor struct {
	store Store
	http  *http.Client
	log   logger.Logger
}

// NewExecutor builds an Executor. A nil httpClient falls back to a client
// with a bounded timeout.
func NewExecutor(store Store, httpClient *http.Client, log logger.Logger) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultPostTimeout}
	}
	return &Executor{store: store, http: httpClient, log: log}
}

// Unsubscribe attempts the service's unsubscribe methods in order:
//
//  1. one-click POST when OneClickSupported and a URL is known; a failed
//     POST falls through rather than failing the action;
//  2. otherwise the URL is returned for the caller to open out-of-band;
//  3. neither → domain.ErrNoUnsubscribeMethod, nothing is mutated.
//
// Paths 1 and 2 both count as success: the Service is deleted, removed from
// the user's set, totalServices decremented and unsubscribedCount
// incremented.
func (e *Executor) Unsubscribe(ctx context.Context, user *domain.User, emailID string) (Outcome, error) {
	owns, err := e.store.OwnsService(ctx, user.ID, emailID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check ownership: %w", err)
	}
	if !owns {
		return Outcome{}, domain.ErrNotOwned
	}

	svc, err := e.store.GetService(ctx, emailID)
	if err != nil {
		return Outcome{}, err
	}

	if svc.OneClickSupported && svc.UnsubscribeURL != "" {
		postErr := e.postOneClick(ctx, svc.UnsubscribeURL)
		if postErr == nil {
			if err := e.complete(ctx, user, emailID); err != nil {
				return Outcome{}, err
			}
			e.log.Info("unsubscribed via one-click",
				logger.String("user_id", user.ID),
				logger.String("service", emailID))
			return Outcome{Message: "Unsubscribed successfully"}, nil
		}
		e.log.Warn("one-click unsubscribe failed, falling back to redirect",
			logger.String("service", emailID),
			logger.Error(postErr))
	}

	if svc.UnsubscribeURL != "" {
		if err := e.complete(ctx, user, emailID); err != nil {
			return Outcome{}, err
		}
		e.log.Info("unsubscribe redirect issued",
			logger.String("user_id", user.ID),
			logger.String("service", emailID))
		return Outcome{
			Message:     "Complete the unsubscribe on the sender's page",
			RedirectURL: svc.UnsubscribeURL,
		}, nil
	}

	return Outcome{}, domain.ErrNoUnsubscribeMethod
}

// postOneClick performs the RFC 8058 POST. Any non-2xx answer is a failure.
func (e *Executor) postOneClick(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(oneClickBody))
	if err != nil {
		return fmt.Errorf("build one-click request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("one-click post: %w", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("one-click post: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// complete applies the fresh-slate policy: the document is dropped entirely
// so the sender, if it keeps mailing, is re-discovered as new by a later
// scan. Counters are adjusted by deltas, never recomputed.
func (e *Executor) complete(ctx context.Context, user *domain.User, emailID string) error {
	if err := e.store.DeleteService(ctx, emailID); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if err := e.store.RemoveUserService(ctx, user.ID, emailID); err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	total, err := e.store.IncrTotalServices(ctx, user.ID, -1)
	if err != nil {
		return fmt.Errorf("decrement total services: %w", err)
	}
	count, err := e.store.IncrUnsubscribed(ctx, user.ID, 1)
	if err != nil {
		return fmt.Errorf("increment unsubscribed count: %w", err)
	}
	user.TotalServices = total
	user.UnsubscribedCount = count
	return nil
}
