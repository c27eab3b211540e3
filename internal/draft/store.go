// Package draft persists unscored, in-progress editor code per student and question.
package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oelp-api/internal/observability"
)

// Key identifies a draft.
type Key struct {
	StudentID  uint
	QuestionID uint
}

// String returns the storage key for the draft.
func (k Key) String() string {
	return fmt.Sprintf("draft:%d:%d", k.StudentID, k.QuestionID)
}

// Valid reports whether both identities are set.
func (k Key) Valid() bool {
	return k.StudentID != 0 && k.QuestionID != 0
}

// ErrInvalidKey is returned for keys without a student or question.
var ErrInvalidKey = errors.New("draft key requires student and question")

// Store is a keyed text store for drafts. Last write wins.
type Store interface {
	Load(ctx context.Context, key Key) (string, bool, error)
	Save(ctx context.Context, key Key, code string) error
	Delete(ctx context.Context, key Key) error
}

// RedisStore keeps drafts in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore builds a Redis backed draft store. A zero ttl keeps drafts forever.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "draft_store").Logger(),
	}
}

// Load returns the stored draft. found is false when no draft exists.
func (s *RedisStore) Load(ctx context.Context, key Key) (string, bool, error) {
	if !key.Valid() {
		return "", false, ErrInvalidKey
	}

	code, err := s.client.Get(ctx, key.String()).Result()
	switch {
	case errors.Is(err, redis.Nil):
		observability.DraftOperations().WithLabelValues("load", "miss").Inc()
		return "", false, nil
	case err != nil:
		observability.DraftOperations().WithLabelValues("load", "error").Inc()
		return "", false, fmt.Errorf("load draft: %w", err)
	}

	observability.DraftOperations().WithLabelValues("load", "hit").Inc()
	return code, true, nil
}

// Save overwrites the draft.
func (s *RedisStore) Save(ctx context.Context, key Key, code string) error {
	if !key.Valid() {
		return ErrInvalidKey
	}

	if err := s.client.Set(ctx, key.String(), code, s.ttl).Err(); err != nil {
		observability.DraftOperations().WithLabelValues("save", "error").Inc()
		return fmt.Errorf("save draft: %w", err)
	}

	observability.DraftOperations().WithLabelValues("save", "ok").Inc()
	s.logger.Debug().Str("key", key.String()).Int("bytes", len(code)).Msg("draft saved")
	return nil
}

// Delete removes the draft. Deleting a missing draft is not an error.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if !key.Valid() {
		return ErrInvalidKey
	}

	if err := s.client.Del(ctx, key.String()).Err(); err != nil {
		observability.DraftOperations().WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("delete draft: %w", err)
	}

	observability.DraftOperations().WithLabelValues("delete", "ok").Inc()
	return nil
}
