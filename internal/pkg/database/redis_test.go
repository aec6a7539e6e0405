package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynkmn/reactoruq/internal/config"
)

func TestCache_Integration(t *testing.T) {
	host := os.Getenv("REDIS_TEST_HOST")
	if host == "" {
		t.Skip("REDIS_TEST_HOST not set, skipping integration test")
	}
	port := 6379
	if p, err := strconv.Atoi(os.Getenv("REDIS_TEST_PORT")); err == nil {
		port = p
	}

	ctx := context.Background()
	db, err := NewRedis(ctx, config.RedisConfig{Host: host, Port: port}, nil)
	require.NoError(t, err)
	defer db.Close()

	cache := NewCache(db.Client, time.Minute)
	key := "reactoruq:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	defer cache.Delete(ctx, key)

	_, found, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, key, "[1,2,3]"))
	v, found, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[1,2,3]", v)
}
