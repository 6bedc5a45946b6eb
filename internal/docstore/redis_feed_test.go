package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisFeed(t *testing.T) *RedisFeed {
	t.Helper()
	mr := miniredis.RunT(t)
	feed := NewRedisFeedWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = feed.Close() })
	return feed
}

func TestRedisFeedDeliversSignals(t *testing.T) {
	ctx := context.Background()
	feed := newTestRedisFeed(t)
	require.NoError(t, feed.Ping(ctx))

	signals, cancel, err := feed.Subscribe(ctx, "pairSpaces/p1/setup/current")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, feed.Publish(ctx, "pairSpaces/p1/setup/current"))

	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestRedisFeedIgnoresOtherPaths(t *testing.T) {
	ctx := context.Background()
	feed := newTestRedisFeed(t)

	signals, cancel, err := feed.Subscribe(ctx, "users/a")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, feed.Publish(ctx, "users/b"))

	select {
	case <-signals:
		t.Fatal("unexpected signal")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisFeedCancelClosesChannel(t *testing.T) {
	feed := newTestRedisFeed(t)

	signals, cancel, err := feed.Subscribe(context.Background(), "users/a")
	require.NoError(t, err)
	cancel()
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-signals:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryWatchOverRedisFeed(t *testing.T) {
	ctx := context.Background()
	feed := newTestRedisFeed(t)

	m := NewMemory(feed)
	sub, err := m.Watch(ctx, "users/a")
	require.NoError(t, err)
	defer sub.Close()

	first := <-sub.C
	assert.False(t, first.Exists)

	require.NoError(t, SetDocument(ctx, m, "users/a", map[string]string{"name": "Ann"}))

	select {
	case snap := <-sub.C:
		assert.True(t, snap.Exists)
	case <-time.After(2 * time.Second):
		t.Fatal("change not observed through redis")
	}
}
