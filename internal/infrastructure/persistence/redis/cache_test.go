package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, "counseling:", cfg.KeyPrefix)
}

func TestKeys(t *testing.T) {
	k := Keys{prefix: "counseling:"}
	assert.Equal(t, "counseling:students", k.Records())
	assert.Equal(t, "counseling:students:version", k.Version())
	assert.Equal(t, "counseling:allocation:cycles", k.Cycles())
	assert.Equal(t, "counseling:status:7:a@x.io", k.Status(7, "a@x.io"))
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{in: nil, want: 0},
		{in: "", want: 0},
		{in: "42", want: 42},
		{in: "x", wantErr: true},
		{in: 3, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseVersion(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestCache_ArgumentChecks(t *testing.T) {
	c := NewCacheWithClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}), "t:")
	defer c.Close()
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Second), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Set(ctx, "k", make(chan int), time.Second), ErrCacheSerialization)

	var v int
	assert.ErrorIs(t, c.Get(ctx, "", &v), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
}

func TestNewCache_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.MaxRetries = -1
	cfg.DialTimeout = 200 * time.Millisecond

	_, err := NewCache(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}
