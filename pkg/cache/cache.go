package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richxcame/risk-engine/pkg/async"
	"github.com/richxcame/risk-engine/pkg/logger"
	redisclient "github.com/richxcame/risk-engine/pkg/redis"
	"go.uber.org/zap"
)

// Manager handles caching operations with JSON serialization
type Manager struct {
	redis redisclient.ClientInterface
}

// NewManager creates a new cache manager
func NewManager(redis redisclient.ClientInterface) *Manager {
	return &Manager{redis: redis}
}

// Get retrieves a cached value and unmarshals it into result.
// A missing key surfaces as the client's miss error (see redisclient.IsNil).
func (m *Manager) Get(ctx context.Context, key string, result interface{}) error {
	data, err := m.redis.GetString(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(data), result); err != nil {
		return fmt.Errorf("failed to unmarshal cache value %s: %w", key, err)
	}
	return nil
}

// Set marshals and caches a value with expiration
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.redis.SetWithExpiration(ctx, key, string(data), ttl)
}

// SetIfAbsent marshals and caches a value unless the key already holds one.
func (m *Manager) SetIfAbsent(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.redis.SetIfAbsent(ctx, key, string(data), ttl)
}

// GetOrSet retrieves from cache or executes fn and caches the result.
// Any read error counts as a miss. The fill runs in the background and
// never replaces a value written meanwhile by Set.
func (m *Manager) GetOrSet(ctx context.Context, key string, ttl time.Duration, result interface{}, fn func() (interface{}, error)) error {
	if err := m.Get(ctx, key, result); err == nil {
		return nil
	}

	data, err := fn()
	if err != nil {
		return err
	}

	async.GoWithTimeout(ctx, "cache-fill", 5*time.Second, func(cacheCtx context.Context) {
		if _, err := m.SetIfAbsent(cacheCtx, key, data, ttl); err != nil {
			logger.WarnContext(cacheCtx, "failed to cache key", zap.String("key", key), zap.Error(err))
		}
	})

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return json.Unmarshal(jsonData, result)
}

// Delete removes a key from cache
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	return m.redis.Delete(ctx, keys...)
}

// CacheKeys defines common cache key patterns
type CacheKeys struct{}

var Keys = CacheKeys{}

// TelcoSignal returns the key of the last-known carrier record for a user
func (k CacheKeys) TelcoSignal(userID string) string {
	return fmt.Sprintf("telco:signal:%s", userID)
}

// LastAssessment returns the key of a user's most recent assessment summary
func (k CacheKeys) LastAssessment(userID string) string {
	return fmt.Sprintf("risk:last:%s", userID)
}
