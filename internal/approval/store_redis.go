package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"vigil/pkg/sentinel"
)

const sessionKeyPrefix = "approval:session:"

// RedisStore keeps approval sessions in Redis with native key expiry. The
// production choice: instances share the window, and Redis drops expired
// sessions without a reaper.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, session *Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal approval session: %w", err)
	}
	return s.client.Set(ctx, sessionKeyPrefix+session.ID.String(), payload, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal approval session: %w", err)
	}
	return &session, nil
}
