package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "camibot:session:"

// RedisStore keeps sessions as JSON values in Redis so they survive process
// restarts. Read-modify-write for one key is serialized with a local
// per-key mutex; the engine runs as a single process per bot number.
type RedisStore struct {
	rdb   *redis.Client
	locks *keyLocks
}

// ConnectRedis creates the client and verifies the connection before the
// store is handed to the dispatcher.
func ConnectRedis(addr string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable at %s: %w", addr, err)
	}

	return &RedisStore{rdb: rdb, locks: newKeyLocks()}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Session, error) {
	sess, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = newSession(key)
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (s *RedisStore) Update(ctx context.Context, key string, mutate func(*Session)) error {
	unlock := s.locks.lock(key)
	defer unlock()

	sess, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = newSession(key)
	}
	mutate(sess)
	sess.UpdatedAt = time.Now().UTC()
	return s.save(ctx, sess)
}

func (s *RedisStore) load(ctx context.Context, key string) (*Session, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get session %s: %w", key, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return &sess, nil
}

func (s *RedisStore) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.Key, err)
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+sess.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set session %s: %w", sess.Key, err)
	}
	return nil
}
