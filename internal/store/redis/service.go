package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trimbox/trimbox/internal/domain"
)

// Store handles Redis operations for services, users and sessions.
//
// Service documents are hashes so the emailCount field can grow through
// HIncrBy: the counter is adjusted, never recomputed, which keeps concurrent
// scan and unsubscribe writes from clobbering each other.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// service hash field names.
const (
	fieldName             = "name"
	fieldDomain           = "domain"
	fieldDescription      = "description"
	fieldIconURL          = "iconUrl"
	fieldEmailCount       = "emailCount"
	fieldLastEmailSubject = "lastEmailSubject"
	fieldLastEmailDate    = "lastEmailDate"
	fieldRecentEmails     = "recentEmails"
	fieldUnsubURL         = "unsubscribeUrl"
	fieldUnsubMailto      = "unsubscribeMailto"
	fieldOneClick         = "oneClickSupported"
	fieldIsUnsubscribed   = "isUnsubscribed"
	fieldCreatedAt        = "createdAt"
	fieldUpdatedAt        = "updatedAt"
)

// UpsertService inserts or merges one sender document and returns the stored
// state. Merge semantics:
//
//   - presentation and recency fields are overwritten by the update,
//   - emailCount grows by the update's NewCount,
//   - lastEmailDate only moves forward,
//   - unsubscribe link fields are sticky: an empty value never clears a
//     previously stored one, oneClickSupported never flips back to false.
func (s *Store) UpsertService(ctx context.Context, upd domain.ServiceUpdate) (*domain.Service, error) {
	key := ServiceKey(upd.EmailID)

	current, err := s.GetService(ctx, upd.EmailID)
	if err != nil && !errors.Is(err, domain.ErrServiceNotFound) {
		return nil, err
	}

	recent, err := json.Marshal(upd.RecentEmails)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recent emails: %w", err)
	}

	now := time.Now()
	fields := map[string]any{
		fieldName:             upd.Name,
		fieldDomain:           upd.Domain,
		fieldDescription:      upd.Description,
		fieldIconURL:          upd.IconURL,
		fieldLastEmailSubject: upd.LastEmailSubject,
		fieldRecentEmails:     string(recent),
		fieldUpdatedAt:        now.Format(time.RFC3339Nano),
	}
	if current == nil || upd.LastEmailDate.After(current.LastEmailDate) {
		fields[fieldLastEmailDate] = upd.LastEmailDate.Format(time.RFC3339Nano)
	}
	if upd.UnsubscribeURL != "" {
		fields[fieldUnsubURL] = upd.UnsubscribeURL
	}
	if upd.UnsubscribeMailto != "" {
		fields[fieldUnsubMailto] = upd.UnsubscribeMailto
	}
	if upd.OneClickSupported {
		fields[fieldOneClick] = "1"
	}

	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, fieldCreatedAt, now.Format(time.RFC3339Nano))
	pipe.HSet(ctx, key, fields)
	pipe.HIncrBy(ctx, key, fieldEmailCount, upd.NewCount)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to upsert service %s: %w", upd.EmailID, err)
	}

	return s.GetService(ctx, upd.EmailID)
}

// GetService retrieves a service document by its normalized sender address.
// Returns domain.ErrServiceNotFound when no document exists.
func (s *Store) GetService(ctx context.Context, emailID string) (*domain.Service, error) {
	data, err := s.client.HGetAll(ctx, ServiceKey(emailID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.ErrServiceNotFound
	}
	return serviceFromHash(emailID, data)
}

// DeleteService removes a service document.
func (s *Store) DeleteService(ctx context.Context, emailID string) error {
	if err := s.client.Del(ctx, ServiceKey(emailID)).Err(); err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	return nil
}

// UserServices retrieves every service the user owns, sorted newest mail
// first. Missing documents are skipped: a membership entry whose document
// was collected is not an error for the reader.
func (s *Store) UserServices(ctx context.Context, userID string) ([]*domain.Service, error) {
	ids, err := s.client.SMembers(ctx, UserServicesKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user service IDs: %w", err)
	}

	services := make([]*domain.Service, 0, len(ids))
	for _, id := range ids {
		svc, err := s.GetService(ctx, id)
		if err != nil {
			continue
		}
		services = append(services, svc)
	}

	sort.Slice(services, func(i, j int) bool {
		return services[i].LastEmailDate.After(services[j].LastEmailDate)
	})
	return services, nil
}

func serviceFromHash(emailID string, data map[string]string) (*domain.Service, error) {
	svc := &domain.Service{
		EmailID:           emailID,
		Name:              data[fieldName],
		Domain:            data[fieldDomain],
		Description:       data[fieldDescription],
		IconURL:           data[fieldIconURL],
		LastEmailSubject:  data[fieldLastEmailSubject],
		UnsubscribeURL:    data[fieldUnsubURL],
		UnsubscribeMailto: data[fieldUnsubMailto],
		OneClickSupported: data[fieldOneClick] == "1",
		IsUnsubscribed:    data[fieldIsUnsubscribed] == "1",
	}

	if raw := data[fieldEmailCount]; raw != "" {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse email count for %s: %w", emailID, err)
		}
		svc.EmailCount = count
	}
	if raw := data[fieldRecentEmails]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &svc.RecentEmails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recent emails for %s: %w", emailID, err)
		}
	}

	var err error
	if svc.LastEmailDate, err = parseTimeField(data[fieldLastEmailDate]); err != nil {
		return nil, fmt.Errorf("failed to parse last email date for %s: %w", emailID, err)
	}
	if svc.CreatedAt, err = parseTimeField(data[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("failed to parse created at for %s: %w", emailID, err)
	}
	if svc.UpdatedAt, err = parseTimeField(data[fieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("failed to parse updated at for %s: %w", emailID, err)
	}
	return svc, nil
}

func parseTimeField(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
