package cache

import (
	"context"
	"time"
)

// Cache stores JSON-encoded values. A corrupt or undecodable entry is treated
// as a miss.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// QuestionKey is the cache key for a question bank entry.
func QuestionKey(questionID string) string {
	return "question:" + questionID
}
