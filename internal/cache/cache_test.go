package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := New(5*time.Second, clock)
	c.Set("products", []string{"a", "b"})

	v, ok := c.Get("products")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v)

	now = now.Add(4 * time.Second)
	_, ok = c.Get("products")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("products")
	assert.False(t, ok, "entry must expire after the TTL")
}

func TestCacheInvalidate(t *testing.T) {
	c := New(time.Minute, nil)
	c.Set("settings", "v1")

	c.Invalidate("settings")
	_, ok := c.Get("settings")
	assert.False(t, ok)
}

func TestCacheFlush(t *testing.T) {
	c := New(time.Minute, nil)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Flush()

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	assert.False(t, okA)
	assert.False(t, okB)
}
