// Package redis provides a Redis-backed session store.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docintel/docintel/agent"
	"github.com/docintel/docintel/session"
)

// Store implements session.Store on Redis. Sessions are plain string keys
// holding the encoded state.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "docintel:session:"
	TTL      time.Duration // Session expiration, default 0 (no expiration)
}

// New creates a Redis session store.
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "docintel:session:"
	}

	return &Store{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, sessionID string) (agent.State, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return agent.State{}, session.ErrNotFound
		}
		return agent.State{}, fmt.Errorf("failed to load session from redis: %w", err)
	}
	return session.DecodeState(data)
}

// Save implements session.Store. Saving refreshes the TTL, so active
// sessions never expire mid-conversation.
func (s *Store) Save(ctx context.Context, sessionID string, state agent.State) error {
	data, err := session.EncodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
