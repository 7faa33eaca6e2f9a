package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the two commands the cache uses.
type fakeRedis struct {
	redis.Cmdable
	data    map[string]string
	ttls    map[string]time.Duration
	failGet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestRedisImageCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := NewRedisImageCache(fake, time.Hour)
	listingID, imageID := uuid.New(), uuid.New()

	data, ok, err := c.GetImage(ctx, listingID, imageID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)

	require.NoError(t, c.SetImage(ctx, listingID, imageID, []byte{0x89, 'P', 'N', 'G'}))
	assert.Equal(t, time.Hour, fake.ttls[imageKey(listingID, imageID)])

	data, ok, err = c.GetImage(ctx, listingID, imageID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestRedisImageCache_GetError(t *testing.T) {
	fake := newFakeRedis()
	fake.failGet = errors.New("connection refused")
	c := NewRedisImageCache(fake, time.Minute)

	_, ok, err := c.GetImage(context.Background(), uuid.New(), uuid.New())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection refused")
}

func TestImageKey(t *testing.T) {
	l := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	i := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	assert.Equal(t, "listings:image:11111111-1111-1111-1111-111111111111:22222222-2222-2222-2222-222222222222", imageKey(l, i))
}
