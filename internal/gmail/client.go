package gmail

import "context"

// Client is the narrow mail-API surface the scan engine requires.
type Client interface {
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	Get(ctx context.Context, id MessageID) (Message, error)
	UnreadCount(ctx context.Context) (int64, error)
}
