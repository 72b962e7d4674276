package sessions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is used when no prefix is configured.
const DefaultKeyPrefix = "session"

const scanBatch = 100

// Redis deletes cached session keys of a user.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// NewRedis creates an invalidator over client. An empty prefix takes
// DefaultKeyPrefix.
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Key returns the cache key of one session.
func Key(prefix string, userID int64, sessionID string) string {
	return prefix + ":" + strconv.FormatInt(userID, 10) + ":" + sessionID
}

func (r *Redis) pattern(userID int64) string {
	return Key(r.prefix, userID, "*")
}

// InvalidateSessions scans for the user's keys and deletes them in batches.
func (r *Redis) InvalidateSessions(ctx context.Context, userID int64) error {
	iter := r.client.Scan(ctx, 0, r.pattern(userID), scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("delete sessions of user %d: %w", userID, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan sessions of user %d: %w", userID, err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("delete sessions of user %d: %w", userID, err)
		}
	}
	return nil
}
