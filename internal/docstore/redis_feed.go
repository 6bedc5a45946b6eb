package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFeed is a Feed over Redis pub/sub, so watchers on one instance see
// commits made by another.
type RedisFeed struct {
	client *redis.Client
	prefix string
}

// NewRedisFeed connects to redisURL and verifies the connection.
func NewRedisFeed(redisURL string) (*RedisFeed, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisFeedWithClient(client), nil
}

// NewRedisFeedWithClient creates a feed from an existing Redis client
func NewRedisFeedWithClient(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client, prefix: "docs:"}
}

func (f *RedisFeed) channel(path string) string {
	return f.prefix + path
}

func (f *RedisFeed) Publish(ctx context.Context, path string) error {
	if err := f.client.Publish(ctx, f.channel(path), "changed").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, path string) (<-chan struct{}, func(), error) {
	pubsub := f.client.Subscribe(ctx, f.channel(path))
	// Wait for the subscription to be confirmed so no publish after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	out := make(chan struct{}, 1)
	msgs := pubsub.Channel()
	stop := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-stop:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

// Ping checks if Redis is reachable
func (f *RedisFeed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (f *RedisFeed) Close() error {
	return f.client.Close()
}
