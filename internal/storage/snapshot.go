package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"pairup/backend/internal/config"
	"pairup/backend/internal/models"
)

const (
	presenceKeyPrefix = "presence:"
	proposalKeyPrefix = "proposal:"
	roomKeyPrefix     = "room:"
)

// Snapshot keys are a crash-recovery aid. Live state is never read back from them.

func presenceKey(connID string) string     { return presenceKeyPrefix + connID }
func proposalKey(proposalID string) string { return proposalKeyPrefix + proposalID }
func roomKey(roomID string) string         { return roomKeyPrefix + roomID }

// SavePresence stores the presence record with a short safety TTL.
func (s *Service) SavePresence(rec models.PresenceRecord) error {
	return s.setJSON(presenceKey(rec.ConnectionID), rec, config.PresenceSnapshotTTL)
}

// TouchPresence extends the presence TTL after a heartbeat.
func (s *Service) TouchPresence(connID string) error {
	ctx, cancel := s.requestCtx()
	defer cancel()
	if err := s.Redis.Expire(ctx, presenceKey(connID), config.PresenceSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to touch presence: %w", err)
	}
	return nil
}

func (s *Service) DeletePresence(connID string) error {
	return s.del(presenceKey(connID))
}

// SaveProposal stores the proposal until its deadline.
func (s *Service) SaveProposal(p *models.MatchProposal) error {
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.setJSON(proposalKey(p.ID), p, ttl)
}

func (s *Service) DeleteProposal(proposalID string) error {
	return s.del(proposalKey(proposalID))
}

// SaveRoom stores the room without a TTL; it is deleted explicitly once empty.
func (s *Service) SaveRoom(room *models.Room) error {
	return s.setJSON(roomKey(room.ID), room, 0)
}

func (s *Service) DeleteRoom(roomID string) error {
	return s.del(roomKey(roomID))
}

// ClearSnapshots removes every snapshot key and reports how many were deleted.
func (s *Service) ClearSnapshots() (int, error) {
	ctx, cancel := s.requestCtx()
	defer cancel()

	deleted := 0
	for _, prefix := range []string{presenceKeyPrefix, proposalKeyPrefix, roomKeyPrefix} {
		iter := s.Redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return deleted, fmt.Errorf("failed to scan %s keys: %w", prefix, err)
		}
		if len(keys) == 0 {
			continue
		}
		n, err := s.Redis.Del(ctx, keys...).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete %s keys: %w", prefix, err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// PublishEvent publishes an outbound event on the events channel for external
// observers. Delivery to the addressed client does not depend on it.
func (s *Service) PublishEvent(event models.Event) error {
	payload := struct {
		ConnectionID string `json:"connection_id"`
		models.Event
	}{event.ConnectionID, event}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := s.requestCtx()
	defer cancel()
	if err := s.Redis.Publish(ctx, config.EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (s *Service) setJSON(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	ctx, cancel := s.requestCtx()
	defer cancel()
	if err := s.Redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *Service) del(key string) error {
	ctx, cancel := s.requestCtx()
	defer cancel()
	if err := s.Redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
