package scan

import (
	"sort"
	"time"

	"github.com/trimbox/trimbox/internal/domain"
)

// faviconService is the deterministic icon derivation for a sender domain.
// It is a pure string build, never a network call.
const faviconService = "https://www.google.com/s2/favicons?domain="

// Aggregate groups actionable signals by normalized sender identity and
// produces one ServiceUpdate per sender. It is pure and order-independent:
// every merge rule keys off InternalDate, not arrival order, so concurrent
// fetch completion cannot change the result.
func Aggregate(signals []domain.UnsubscribeSignal) map[string]domain.ServiceUpdate {
	groups := make(map[string][]domain.UnsubscribeSignal)
	for _, sig := range signals {
		if !sig.Actionable() {
			continue
		}
		id := domain.SenderIdentity(sig.SenderHeader)
		if id == "" {
			continue
		}
		groups[id] = append(groups[id], sig)
	}

	updates := make(map[string]domain.ServiceUpdate, len(groups))
	for id, group := range groups {
		updates[id] = mergeGroup(id, group)
	}
	return updates
}

func mergeGroup(id string, group []domain.UnsubscribeSignal) domain.ServiceUpdate {
	// Newest first. Ties keep slice order, which only matters for
	// identical timestamps within one run.
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].InternalDate > group[j].InternalDate
	})

	latest := group[0]
	upd := domain.ServiceUpdate{
		EmailID:          id,
		Name:             domain.SenderName(latest.SenderHeader, id),
		Domain:           domain.SenderDomain(id),
		Description:      "Subscription service from " + id,
		LastEmailSubject: latest.Subject,
		LastEmailDate:    time.UnixMilli(latest.InternalDate),
		NewCount:         int64(len(group)),
	}
	if upd.Domain != "" {
		upd.IconURL = faviconService + upd.Domain
	}

	// Sticky link merge: the newest signal that actually carries a link
	// wins; a newer signal without one does not erase an older find.
	for _, sig := range group {
		if upd.UnsubscribeURL == "" && sig.UnsubscribeURL != "" {
			upd.UnsubscribeURL = sig.UnsubscribeURL
		}
		if upd.UnsubscribeMailto == "" && sig.UnsubscribeMailto != "" {
			upd.UnsubscribeMailto = sig.UnsubscribeMailto
		}
		if sig.OneClickSupported {
			upd.OneClickSupported = true
		}
	}

	limit := len(group)
	if limit > domain.RecentEmailLimit {
		limit = domain.RecentEmailLimit
	}
	upd.RecentEmails = make([]domain.RecentEmail, 0, limit)
	for _, sig := range group[:limit] {
		upd.RecentEmails = append(upd.RecentEmails, domain.RecentEmail{
			Subject: sig.Subject,
			Date:    time.UnixMilli(sig.InternalDate),
			Snippet: sig.Snippet,
		})
	}
	return upd
}
