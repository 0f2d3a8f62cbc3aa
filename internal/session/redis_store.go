// Package session provides Redis-backed storage for per-visit session state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

// State is everything a visit carries: identity, the role resolved once at
// login, and the transient UI pointers. Deleting the record clears all of it
// at once.
type State struct {
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name"`
	Role             string    `json:"role"`
	ActiveDialog     string    `json:"active_dialog,omitempty"`
	EditingProjectID string    `json:"editing_project_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RedisStore keeps session state keyed by token hash with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "session:", ttl: ttl}, nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "session:", ttl: ttl}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

func (s *RedisStore) Save(ctx context.Context, tokenHash string, state State) error {
	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(tokenHash), jsonData, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (State, error) {
	jsonData, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("lookup session state: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(jsonData), &state); err != nil {
		return State{}, fmt.Errorf("unmarshal session state: %w", err)
	}
	if state.Role == "" {
		state.Role = "readonly"
	}
	return state, nil
}

// UpdateUI replaces the transient UI pointers without touching identity or
// role. The record keeps its remaining TTL.
func (s *RedisStore) UpdateUI(ctx context.Context, tokenHash, activeDialog, editingProjectID string) error {
	state, err := s.Lookup(ctx, tokenHash)
	if err != nil {
		return err
	}
	state.ActiveDialog = activeDialog
	state.EditingProjectID = editingProjectID

	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(tokenHash), jsonData, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	return nil
}

// Delete removes the whole session record. Logout is total: no field survives.
func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("delete session state: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
