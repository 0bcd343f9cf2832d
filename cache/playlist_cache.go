package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// playlistTTL bounds how long a generated playlist stays valid. Playlists
// are cheap to regenerate and the library changes under them, so the
// window is short.
const playlistTTL = 15 * time.Minute

// PlaylistKey builds the cache key for one generation call. The key folds
// in the operation name and every parameter that changes the result.
func PlaylistKey(op string, seeds []int64, params ...int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "playlist:%s", op)
	for _, id := range seeds {
		fmt.Fprintf(&b, ":%d", id)
	}
	for _, p := range params {
		fmt.Fprintf(&b, ":p%d", p)
	}
	return b.String()
}

// GetPlaylist returns a cached playlist, or nil when the key is absent.
func GetPlaylist(ctx context.Context, key string) ([]int64, error) {
	if RedisClient == nil {
		return nil, nil
	}
	raw, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached playlist: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode cached playlist: %w", err)
	}
	return ids, nil
}

// SetPlaylist stores a generated playlist under the key.
func SetPlaylist(ctx context.Context, key string, ids []int64) error {
	if RedisClient == nil {
		return nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode playlist: %w", err)
	}
	if err := RedisClient.Set(ctx, key, raw, playlistTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache playlist: %w", err)
	}
	return nil
}

// InvalidatePlaylists drops every cached playlist. Called after a scan
// changes the indexed library.
func InvalidatePlaylists(ctx context.Context) error {
	if RedisClient == nil {
		return nil
	}
	iter := RedisClient.Scan(ctx, 0, "playlist:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := RedisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to invalidate cached playlist: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate playlist cache keys: %w", err)
	}
	return nil
}
