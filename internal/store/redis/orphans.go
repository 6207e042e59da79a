package redis

import (
	"context"
	"fmt"
)

// ServiceIDs returns the sender addresses of every stored service document.
func (s *Store) ServiceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, KeyPrefixService+"*", 0).Iterator()
	for iter.Next(ctx) {
		id, err := ExtractServiceID(iter.Val())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan service keys: %w", err)
	}
	return ids, nil
}

// ReferencedServiceIDs returns the union of every user's service set: the
// ids at least one user still references.
func (s *Store) ReferencedServiceIDs(ctx context.Context) (map[string]bool, error) {
	referenced := make(map[string]bool)
	iter := s.client.Scan(ctx, 0, KeyPrefixUser+"*:services", 0).Iterator()
	for iter.Next(ctx) {
		members, err := s.client.SMembers(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read membership set %s: %w", iter.Val(), err)
		}
		for _, id := range members {
			referenced[id] = true
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan membership sets: %w", err)
	}
	return referenced, nil
}
