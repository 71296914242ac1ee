package security

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "challenge:"

// incrIfExists avoids recreating a hash that expired between Get and the increment.
var incrIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

// RedisChallengeStore keeps each challenge in a hash with a TTL.
type RedisChallengeStore struct {
	client *redis.Client
}

func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func challengeKey(token string) string {
	return challengeKeyPrefix + token
}

func (s *RedisChallengeStore) Save(ctx context.Context, c *Challenge, ttl time.Duration) error {
	key := challengeKey(c.Token)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"subject":      c.Subject,
			"purpose":      c.Purpose,
			"payload":      c.Payload,
			"code_hash":    c.CodeHash,
			"attempts":     c.Attempts,
			"max_attempts": c.MaxAttempts,
			"expires_at":   c.ExpiresAt.UnixMilli(),
		})
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (s *RedisChallengeStore) Get(ctx context.Context, token string) (*Challenge, error) {
	fields, err := s.client.HGetAll(ctx, challengeKey(token)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrChallengeNotFound
	}
	attempts, _ := strconv.Atoi(fields["attempts"])
	maxAttempts, _ := strconv.Atoi(fields["max_attempts"])
	expiresMs, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	return &Challenge{
		Token:       token,
		Subject:     fields["subject"],
		Purpose:     fields["purpose"],
		Payload:     fields["payload"],
		CodeHash:    fields["code_hash"],
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		ExpiresAt:   time.UnixMilli(expiresMs),
	}, nil
}

func (s *RedisChallengeStore) IncrementAttempts(ctx context.Context, token string) (int, error) {
	n, err := incrIfExists.Run(ctx, s.client, []string{challengeKey(token)}).Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrChallengeNotFound
	}
	return n, nil
}

func (s *RedisChallengeStore) Delete(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Del(ctx, challengeKey(token)).Result()
	return n > 0, err
}

// MemoryChallengeStore is an in-process store for tests and single-instance use.
type MemoryChallengeStore struct {
	mu    sync.Mutex
	items map[string]memoryChallenge
	now   func() time.Time
}

type memoryChallenge struct {
	c        Challenge
	deadline time.Time
}

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{items: map[string]memoryChallenge{}, now: time.Now}
}

func (s *MemoryChallengeStore) Save(_ context.Context, c *Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[c.Token] = memoryChallenge{c: *c, deadline: s.now().Add(ttl)}
	return nil
}

func (s *MemoryChallengeStore) lookup(token string) (memoryChallenge, bool) {
	item, ok := s.items[token]
	if !ok {
		return item, false
	}
	if !s.now().Before(item.deadline) {
		delete(s.items, token)
		return item, false
	}
	return item, true
}

func (s *MemoryChallengeStore) Get(_ context.Context, token string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.lookup(token)
	if !ok {
		return nil, ErrChallengeNotFound
	}
	c := item.c
	return &c, nil
}

func (s *MemoryChallengeStore) IncrementAttempts(_ context.Context, token string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.lookup(token)
	if !ok {
		return 0, ErrChallengeNotFound
	}
	item.c.Attempts++
	s.items[token] = item
	return item.c.Attempts, nil
}

func (s *MemoryChallengeStore) Delete(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(token)
	delete(s.items, token)
	return ok, nil
}
