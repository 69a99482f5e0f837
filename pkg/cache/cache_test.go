package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements redisclient.ClientInterface in memory
type fakeRedis struct {
	mu       sync.Mutex
	data     map[string]string
	ttl      map[string]time.Duration
	getError error
	setError error
	sets     chan string
	fills    chan string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data:  make(map[string]string),
		ttl:   make(map[string]time.Duration),
		sets:  make(chan string, 8),
		fills: make(chan string, 8),
	}
}

func (f *fakeRedis) GetString(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getError != nil {
		return "", f.getError
	}
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeRedis) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setError != nil {
		return f.setError
	}
	f.data[key] = value.(string)
	f.ttl[key] = expiration
	f.sets <- key
	return nil
}

func (f *fakeRedis) SetIfAbsent(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer func() { f.fills <- key }()
	if f.setError != nil {
		return false, f.setError
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	f.ttl[key] = expiration
	return true, nil
}

func (f *fakeRedis) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

type signal struct {
	IMEI    string `json:"imei"`
	Roaming bool   `json:"roaming"`
}

func TestManager_SetThenGet(t *testing.T) {
	r := newFakeRedis()
	m := NewManager(r)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", signal{IMEI: "356", Roaming: true}, time.Hour))
	assert.Equal(t, time.Hour, r.ttl["k"])

	var got signal
	require.NoError(t, m.Get(ctx, "k", &got))
	assert.Equal(t, signal{IMEI: "356", Roaming: true}, got)
}

func TestManager_GetMissReturnsRedisNil(t *testing.T) {
	m := NewManager(newFakeRedis())

	var got signal
	err := m.Get(context.Background(), "absent", &got)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestManager_GetCorruptValue(t *testing.T) {
	r := newFakeRedis()
	r.data["k"] = "{not json"
	m := NewManager(r)

	var got signal
	err := m.Get(context.Background(), "k", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, redis.Nil)
}

func TestManager_GetOrSet_HitSkipsLoader(t *testing.T) {
	r := newFakeRedis()
	m := NewManager(r)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", signal{IMEI: "cached"}, time.Minute))
	<-r.sets

	var got signal
	err := m.GetOrSet(ctx, "k", time.Minute, &got, func() (interface{}, error) {
		t.Fatal("loader must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cached", got.IMEI)
}

func TestManager_GetOrSet_MissLoadsAndFills(t *testing.T) {
	r := newFakeRedis()
	m := NewManager(r)

	var got signal
	err := m.GetOrSet(context.Background(), "k", time.Minute, &got, func() (interface{}, error) {
		return signal{IMEI: "loaded"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "loaded", got.IMEI)

	waitFill(t, r, "k")
	assert.Equal(t, time.Minute, r.ttl["k"])
	assert.JSONEq(t, `{"imei":"loaded","roaming":false}`, r.data["k"])
}

func waitFill(t *testing.T, r *fakeRedis, want string) {
	t.Helper()
	select {
	case key := <-r.fills:
		assert.Equal(t, want, key)
	case <-time.After(time.Second):
		t.Fatal("expected background cache fill")
	}
}

func TestManager_GetOrSet_FillKeepsNewerValue(t *testing.T) {
	r := newFakeRedis()
	m := NewManager(r)
	ctx := context.Background()

	var got signal
	err := m.GetOrSet(ctx, "k", time.Minute, &got, func() (interface{}, error) {
		// a writer refreshes the key after the loader read its row
		require.NoError(t, m.Set(ctx, "k", signal{IMEI: "newer"}, time.Hour))
		return signal{IMEI: "older"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "older", got.IMEI)

	waitFill(t, r, "k")
	var cached signal
	require.NoError(t, m.Get(ctx, "k", &cached))
	assert.Equal(t, "newer", cached.IMEI)
	assert.Equal(t, time.Hour, r.ttl["k"])
}

func TestManager_GetOrSet_ReadErrorIsMiss(t *testing.T) {
	r := newFakeRedis()
	r.getError = errors.New("i/o timeout")
	m := NewManager(r)

	calls := 0
	var got signal
	err := m.GetOrSet(context.Background(), "k", time.Minute, &got, func() (interface{}, error) {
		calls++
		return signal{IMEI: "from-db"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "from-db", got.IMEI)
	waitFill(t, r, "k")
}

func TestManager_GetOrSet_LoaderError(t *testing.T) {
	m := NewManager(newFakeRedis())
	loadErr := errors.New("db down")

	var got signal
	err := m.GetOrSet(context.Background(), "k", time.Minute, &got, func() (interface{}, error) {
		return nil, loadErr
	})
	assert.ErrorIs(t, err, loadErr)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "telco:signal:u1", Keys.TelcoSignal("u1"))
	assert.Equal(t, "risk:last:u1", Keys.LastAssessment("u1"))
}
