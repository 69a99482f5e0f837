package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/risk-engine/pkg/cache"
	redisclient "github.com/richxcame/risk-engine/pkg/redis"
)

// RedisTelcoStore keeps last-known carrier records in Redis as JSON.
type RedisTelcoStore struct {
	cache *cache.Manager
	ttl   time.Duration
	clock func() time.Time
}

// NewRedisTelcoStore creates a carrier store whose records expire after ttl.
func NewRedisTelcoStore(redis redisclient.ClientInterface, ttl time.Duration) *RedisTelcoStore {
	return &RedisTelcoStore{
		cache: cache.NewManager(redis),
		ttl:   ttl,
		clock: time.Now,
	}
}

// GetTelcoSignal returns ErrNotFound when no record is cached.
func (s *RedisTelcoStore) GetTelcoSignal(ctx context.Context, userID uuid.UUID) (*TelcoSignals, error) {
	var signal TelcoSignals
	if err := s.cache.Get(ctx, cache.Keys.TelcoSignal(userID.String()), &signal); err != nil {
		if redisclient.IsNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get telco signal: %w", err)
	}
	return &signal, nil
}

// PutTelcoSignal replaces the user's carrier record, retrying transient errors.
func (s *RedisTelcoStore) PutTelcoSignal(ctx context.Context, userID uuid.UUID, signal *TelcoSignals) error {
	if signal.UpdatedAt.IsZero() {
		signal.UpdatedAt = s.clock().UTC()
	}
	key := cache.Keys.TelcoSignal(userID.String())

	_, err := redisclient.RetryableOperation(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.cache.Set(ctx, key, signal, s.ttl)
	}, "telco.put")
	if err != nil {
		return fmt.Errorf("put telco signal: %w", err)
	}
	return nil
}

// DeleteTelcoSignal drops the user's carrier record.
func (s *RedisTelcoStore) DeleteTelcoSignal(ctx context.Context, userID uuid.UUID) error {
	key := cache.Keys.TelcoSignal(userID.String())

	_, err := redisclient.RetryableOperation(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.cache.Delete(ctx, key)
	}, "telco.delete")
	if err != nil {
		return fmt.Errorf("delete telco signal: %w", err)
	}
	return nil
}
