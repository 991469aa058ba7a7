package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/clarity-chat/internal/sitefetch"
)

const pagePrefix = "sitefetch:page:"

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

func PageKey(url string) string {
	return pagePrefix + url
}

// GetPage returns (nil, nil) on a miss.
func (s *Store) GetPage(ctx context.Context, url string) (*sitefetch.Page, error) {
	raw, err := s.rdb.Get(ctx, PageKey(url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var p sitefetch.Page
	if err := json.Unmarshal(raw, &p); err != nil {
		// a corrupt entry is a miss; it gets overwritten on the next fetch
		return nil, nil
	}
	return &p, nil
}

func (s *Store) SetPage(ctx context.Context, page *sitefetch.Page, ttl time.Duration) error {
	b, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, PageKey(page.URL), b, ttl).Err()
}
