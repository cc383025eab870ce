package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis is a [Store] keeping each credential under "<prefix>:<namespace>:<role>".
//
// The namespace separates several client identities (profiles, devices) sharing one
// Redis instance. Keys carry no TTL: expiry is judged by the token claims, not storage.
type Redis struct {
	redis     redis.UniversalClient
	prefix    string
	namespace string
}

// NewRedis creates a Redis-backed store. Empty prefix defaults to "gs" and empty
// namespace defaults to "default".
func NewRedis(client redis.UniversalClient, prefix, namespace string) *Redis {
	if prefix == "" {
		prefix = "gs"
	}
	if namespace == "" {
		namespace = "default"
	}
	return &Redis{redis: client, prefix: prefix, namespace: namespace}
}

func (s *Redis) key(role Role) string {
	return s.prefix + ":" + s.namespace + ":" + string(role)
}

func (s *Redis) Get(ctx context.Context, role Role) (string, bool, error) {
	if err := checkRole(role); err != nil {
		return "", false, err
	}
	v, err := s.redis.Get(ctx, s.key(role)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", role, err)
	}
	return v, true, nil
}

func (s *Redis) Set(ctx context.Context, role Role, value string) error {
	if err := checkRole(role); err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(role), value, 0).Err(); err != nil {
		return unavailable("set", role, err)
	}
	return nil
}

func (s *Redis) Clear(ctx context.Context, role Role) error {
	if err := checkRole(role); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, s.key(role)).Err(); err != nil {
		return unavailable("clear", role, err)
	}
	return nil
}

// ClearAll deletes both keys in one DEL round-trip.
func (s *Redis) ClearAll(ctx context.Context) error {
	keys := make([]string, 0, len(Roles))
	for _, role := range Roles {
		keys = append(keys, s.key(role))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return unavailable("clear all", "", err)
	}
	return nil
}

// Ping reports whether the Redis backend answers.
func (s *Redis) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}
