package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClient(t *testing.T) {
	for _, url := range []string{"", "://bad"} {
		c := New(url)
		assert.False(t, c.Enabled())

		ctx := context.Background()
		require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
		require.NoError(t, c.SetHash(ctx, "h", map[string]interface{}{"ts": 1}, time.Minute))
		require.NoError(t, c.Delete(ctx, "k"))

		var v map[string]int
		assert.ErrorIs(t, c.Get(ctx, "k", &v), redis.Nil)

		keys, err := c.Keys(ctx, "*")
		require.NoError(t, err)
		assert.Empty(t, keys)
		assert.NoError(t, c.Close())
	}

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}
