package scan

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/trimbox/trimbox/internal/domain"
	gc "github.com/trimbox/trimbox/internal/gmail"
	"github.com/trimbox/trimbox/internal/logger"
)

// baseQuery is the fixed search predicate for candidate messages.
const baseQuery = `in:inbox unsubscribe`

// PagerConfig tunes the budgeted page walk.
type PagerConfig struct {
	// PageSize is the list page size; detail fetches within a page run
	// with this same bound since pages are small.
	PageSize int
	// PageDelay is the fixed pause between pages, respecting upstream
	// rate limits.
	PageDelay time.Duration
}

// Pager drives time-budgeted, paginated listing plus concurrent detail
// fetching of candidate messages.
//
// The budget is checked before each new page, never mid-page: a page that
// has started always runs to completion. Exceeding the budget ends the walk
// with partial=true, not an error. A failed list call returns the messages
// gathered so far together with a domain.ErrUpstream-wrapped error; a failed
// detail fetch only skips that one message.
type Pager struct {
	cfg   PagerConfig
	log   logger.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPager builds a Pager. Zero config fields fall back to page size 50 and
// a 500ms inter-page delay.
func NewPager(cfg PagerConfig, log logger.Logger) *Pager {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 500 * time.Millisecond
	}
	return &Pager{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// BuildQuery forms the search predicate, bounding it by the watermark when
// one exists. The watermark is expressed in epoch seconds per the mail API's
// after: operator.
func BuildQuery(since time.Time) gc.Query {
	parts := []string{baseQuery}
	if !since.IsZero() {
		parts = append(parts, "after:"+strconv.FormatInt(since.Unix(), 10))
	}
	return gc.Query{Raw: strings.Join(parts, " ")}
}

// Fetch walks the listing until exhaustion or budget expiry and returns the
// raw message records in fetch-completion order. The bool result is true
// when the budget ended pagination before the listing was exhausted.
func (p *Pager) Fetch(ctx context.Context, client gc.Client, since time.Time, budget time.Duration) ([]gc.Message, bool, error) {
	query := BuildQuery(since)
	deadline := p.now().Add(budget)

	var (
		messages  []gc.Message
		pageToken string
		pages     int
	)

	for {
		if pages > 0 && !p.now().Before(deadline) {
			p.log.Info("scan budget exhausted, ending pagination early",
				logger.Int("pages", pages),
				logger.Int("messages", len(messages)))
			return messages, true, nil
		}

		page, err := client.List(ctx, query, pageToken, p.cfg.PageSize)
		if err != nil {
			// Prior pages are preserved: partial results are still
			// reconciled by the caller.
			return messages, false, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
		}
		pages++

		messages = append(messages, p.fetchPage(ctx, client, page.IDs)...)

		if page.NextPageToken == "" {
			return messages, false, nil
		}
		pageToken = page.NextPageToken

		if err := p.sleep(ctx, p.cfg.PageDelay); err != nil {
			return messages, false, err
		}
	}
}

// fetchPage resolves every id of one page concurrently. The page is complete
// once all fetches resolved or individually failed; failures are logged and
// skipped, never fatal.
func (p *Pager) fetchPage(ctx context.Context, client gc.Client, ids []gc.MessageID) []gc.Message {
	if len(ids) == 0 {
		return nil
	}

	results := make(chan gc.Message, len(ids))
	var wg sync.WaitGroup
	wg.Add(len(ids))
	for _, id := range ids {
		go func(id gc.MessageID) {
			defer wg.Done()
			msg, err := client.Get(ctx, id)
			if err != nil {
				p.log.Warn("skipping message, detail fetch failed",
					logger.String("message_id", string(id)),
					logger.Error(err))
				return
			}
			results <- msg
		}(id)
	}
	wg.Wait()
	close(results)

	page := make([]gc.Message, 0, len(ids))
	for msg := range results {
		page = append(page, msg)
	}
	return page
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
