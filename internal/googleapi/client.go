// Package googleapi adapts *gmail.Service to the narrow client interface
// consumed by the scan engine.
package googleapi

import (
	"context"
	"fmt"

	gmailv1 "google.golang.org/api/gmail/v1"

	gc "github.com/trimbox/trimbox/internal/gmail"
)

// authenticatedUser is the special Gmail user id for the token owner.
const authenticatedUser = "me"

type client struct{ svc *gmailv1.Service }

// NewClient wraps an authenticated *gmail.Service.
func NewClient(svc *gmailv1.Service) gc.Client {
	return &client{svc: svc}
}

func (c *client) List(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	call := c.svc.Users.Messages.List(authenticatedUser).
		Q(q.Raw).
		MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, fmt.Errorf("list messages: %w", err)
	}
	page := gc.ListPage{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, gc.MessageID(m.Id))
	}
	return page, nil
}

func (c *client) Get(ctx context.Context, id gc.MessageID) (gc.Message, error) {
	msg, err := c.svc.Users.Messages.Get(authenticatedUser, string(id)).
		Format("metadata").
		MetadataHeaders("From", "Subject", "List-Unsubscribe", "List-Unsubscribe-Post").
		Context(ctx).Do()
	if err != nil {
		return gc.Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	out := gc.Message{
		ID:           id,
		ThreadID:     msg.ThreadId,
		InternalDate: msg.InternalDate,
		Snippet:      msg.Snippet,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			out.Headers = append(out.Headers, gc.Header{Name: h.Name, Value: h.Value})
		}
	}
	return out, nil
}

// ProfileEmail returns the authenticated mailbox owner's address. Used once
// per sign-in to key the user document.
func ProfileEmail(ctx context.Context, svc *gmailv1.Service) (string, error) {
	profile, err := svc.Users.GetProfile(authenticatedUser).
		Fields("emailAddress").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return profile.EmailAddress, nil
}

func (c *client) UnreadCount(ctx context.Context) (int64, error) {
	label, err := c.svc.Users.Labels.Get(authenticatedUser, "UNREAD").
		Fields("messagesUnread").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get unread label: %w", err)
	}
	return label.MessagesUnread, nil
}
