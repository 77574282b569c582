package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func wishlistKey(owner string) string { return "wishlist:" + owner }

// Toggle flips membership of productID and reports whether it is now present.
func (s *Store) Toggle(ctx context.Context, owner, productID string) (bool, error) {
	key := wishlistKey(owner)
	removed, err := s.rdb.SRem(ctx, key, productID).Result()
	if err != nil {
		return false, err
	}
	if removed > 0 {
		return false, nil
	}
	if err := s.rdb.SAdd(ctx, key, productID).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) IsInWishlist(ctx context.Context, owner, productID string) (bool, error) {
	return s.rdb.SIsMember(ctx, wishlistKey(owner), productID).Result()
}

func (s *Store) Wishlist(ctx context.Context, owner string) ([]string, error) {
	return s.rdb.SMembers(ctx, wishlistKey(owner)).Result()
}

func statusKey(toolCallID string) string { return "imagegen:status:" + toolCallID }

// GetStatus returns the cached terminal status payload, ok=false on a miss.
func (s *Store) GetStatus(ctx context.Context, toolCallID string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, statusKey(toolCallID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) SetStatus(ctx context.Context, toolCallID string, payload []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, statusKey(toolCallID), payload, ttl).Err()
}
