package redis

import (
	"context"
	"time"
)

// ClientInterface is the string-valued key/value surface the cache layer needs.
type ClientInterface interface {
	SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetIfAbsent(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

var _ ClientInterface = (*Client)(nil)
