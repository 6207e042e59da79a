package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trimbox/trimbox/internal/domain"
)

// user hash field names.
const (
	fieldEmail             = "email"
	fieldDisplayName       = "displayName"
	fieldCredential        = "credential"
	fieldLastScanDate      = "lastScanDate"
	fieldTotalServices     = "totalServices"
	fieldUnsubscribedCount = "unsubscribedCount"
)

// SaveUser stores a user document. Counters are written only when the
// document does not exist yet so a re-save cannot reset them.
func (s *Store) SaveUser(ctx context.Context, user *domain.User) error {
	cred, err := json.Marshal(user.Credential)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	key := UserKey(user.ID)
	fields := map[string]any{
		fieldEmail:       user.Email,
		fieldDisplayName: user.DisplayName,
		fieldCredential:  string(cred),
	}
	if !user.LastScanDate.IsZero() {
		fields[fieldLastScanDate] = user.LastScanDate.Format(time.RFC3339Nano)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.HSetNX(ctx, key, fieldTotalServices, user.TotalServices)
	pipe.HSetNX(ctx, key, fieldUnsubscribedCount, user.UnsubscribedCount)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser retrieves a user document by ID. Returns domain.ErrUserNotFound
// when no document exists.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	data, err := s.client.HGetAll(ctx, UserKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return userFromHash(userID, data)
}

// SaveCredential persists a refreshed credential for the user. Called by the
// credential provider before a handle is handed out, so a rotated refresh
// token survives a later scan failure.
func (s *Store) SaveCredential(ctx context.Context, userID string, cred domain.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := s.client.HSet(ctx, UserKey(userID), fieldCredential, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// SetLastScan advances the user's scan watermark.
func (s *Store) SetLastScan(ctx context.Context, userID string, at time.Time) error {
	err := s.client.HSet(ctx, UserKey(userID), fieldLastScanDate, at.Format(time.RFC3339Nano)).Err()
	if err != nil {
		return fmt.Errorf("failed to set last scan: %w", err)
	}
	return nil
}

// AddUserServices appends emailIDs to the user's service set and returns how
// many were newly added. SADD ignores members already present, which is
// exactly the membership-uniqueness guarantee the reconciler needs.
func (s *Store) AddUserServices(ctx context.Context, userID string, emailIDs []string) (int64, error) {
	if len(emailIDs) == 0 {
		return 0, nil
	}
	members := make([]any, len(emailIDs))
	for i, id := range emailIDs {
		members[i] = id
	}
	added, err := s.client.SAdd(ctx, UserServicesKey(userID), members...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to add user services: %w", err)
	}
	return added, nil
}

// RemoveUserService drops one service from the user's set.
func (s *Store) RemoveUserService(ctx context.Context, userID, emailID string) error {
	if err := s.client.SRem(ctx, UserServicesKey(userID), emailID).Err(); err != nil {
		return fmt.Errorf("failed to remove user service: %w", err)
	}
	return nil
}

// OwnsService reports whether the service belongs to the user's set.
func (s *Store) OwnsService(ctx context.Context, userID, emailID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, UserServicesKey(userID), emailID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check service ownership: %w", err)
	}
	return ok, nil
}

// IncrTotalServices adjusts the user's service counter by delta and returns
// the new value. The counter is never recomputed from the set, so a
// concurrent unsubscribe decrement cannot be clobbered by a scan.
func (s *Store) IncrTotalServices(ctx context.Context, userID string, delta int64) (int64, error) {
	total, err := s.client.HIncrBy(ctx, UserKey(userID), fieldTotalServices, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to adjust total services: %w", err)
	}
	return total, nil
}

// IncrUnsubscribed adjusts the user's unsubscribed counter by delta and
// returns the new value.
func (s *Store) IncrUnsubscribed(ctx context.Context, userID string, delta int64) (int64, error) {
	count, err := s.client.HIncrBy(ctx, UserKey(userID), fieldUnsubscribedCount, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to adjust unsubscribed count: %w", err)
	}
	return count, nil
}

// SaveSession maps a session token to a user ID for ttl.
func (s *Store) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, SessionKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteSession drops a session token. Deleting an unknown token is a no-op.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, SessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// UserBySession resolves a session token to its user. Returns
// domain.ErrUserNotFound for unknown or expired tokens.
func (s *Store) UserBySession(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.client.Get(ctx, SessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return s.GetUser(ctx, userID)
}

func userFromHash(userID string, data map[string]string) (*domain.User, error) {
	user := &domain.User{
		ID:          userID,
		Email:       data[fieldEmail],
		DisplayName: data[fieldDisplayName],
	}

	if raw := data[fieldCredential]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &user.Credential); err != nil {
			return nil, fmt.Errorf("failed to unmarshal credential for %s: %w", userID, err)
		}
	}

	var err error
	if user.LastScanDate, err = parseTimeField(data[fieldLastScanDate]); err != nil {
		return nil, fmt.Errorf("failed to parse last scan date for %s: %w", userID, err)
	}
	if user.TotalServices, err = parseIntField(data[fieldTotalServices]); err != nil {
		return nil, fmt.Errorf("failed to parse total services for %s: %w", userID, err)
	}
	if user.UnsubscribedCount, err = parseIntField(data[fieldUnsubscribedCount]); err != nil {
		return nil, fmt.Errorf("failed to parse unsubscribed count for %s: %w", userID, err)
	}
	return user, nil
}

func parseIntField(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
