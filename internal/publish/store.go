package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-chess-client/pkg/chessdto"
	"github.com/redis/go-redis/v9"
)

// Store writes session views to Redis under chess:client:<clientID>.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL and checks the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func keyBase(clientID string) string { return "chess:client:" + strings.TrimSpace(clientID) }

func (s *Store) keyState(clientID string) string { return keyBase(clientID) + ":state" }

func (s *Store) keyEvents(clientID string) string { return keyBase(clientID) + ":events" }

// Save stores the latest view and announces it on the events channel.
func (s *Store) Save(ctx context.Context, clientID string, view chessdto.SessionView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal view: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.keyState(clientID), raw, s.ttl)
		p.Publish(ctx, s.keyEvents(clientID), raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save view: %w", err)
	}
	return nil
}

// Load returns the last stored view, or nil when none exists.
func (s *Store) Load(ctx context.Context, clientID string) (*chessdto.SessionView, error) {
	raw, err := s.rdb.Get(ctx, s.keyState(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v chessdto.SessionView
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}
	return &v, nil
}

// Subscribe opens a subscription on the events channel.
func (s *Store) Subscribe(ctx context.Context, clientID string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, s.keyEvents(clientID))
}
