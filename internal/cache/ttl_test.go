package cache

import (
	"testing"
	"time"

	notificationdomain "github.com/skolara/skolara/internal/notification/domain"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 50*time.Millisecond)
	got, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, got)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("a")
	require.False(t, ok)

	// Zero TTL is a no-op.
	c.Set("b", 2, 0)
	_, ok = c.Get("b")
	require.False(t, ok)

	c.Set("c", 3, time.Minute)
	c.Delete("c")
	_, ok = c.Get("c")
	require.False(t, ok)
}

func TestTemplateResolverCacheScoping(t *testing.T) {
	c := NewTemplateResolverCache()
	schoolID := int64(31)

	tenant := &notificationdomain.NotificationTemplate{Key: "k", SchoolID: &schoolID}
	c.Set("k", &schoolID, tenant)
	c.Set("k", nil, nil) // cached miss for the global scope

	got, ok := c.Get("k", &schoolID)
	require.True(t, ok)
	require.Equal(t, tenant, got)

	got, ok = c.Get("k", nil)
	require.True(t, ok)
	require.Nil(t, got)

	other := int64(99)
	_, ok = c.Get("k", &other)
	require.False(t, ok)

	c.Invalidate("k", &schoolID)
	_, ok = c.Get("k", &schoolID)
	require.False(t, ok)
}
