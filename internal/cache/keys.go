package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix = "user:%s"
	PostKeyPrefix = "post:%s"
	feedVersion   = "feed:version"
)

const (
	UserTTL = 5 * time.Minute
	PostTTL = 30 * time.Minute
	FeedTTL = 30 * time.Second
)

func UserKey(userID string) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID string) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

// FeedKey names one cached feed page under the current feed version.
func FeedKey(version int64, author string, limit, offset int) string {
	return fmt.Sprintf("feed:v%d:%s:%d:%d", version, author, limit, offset)
}

// FeedVersion returns the current feed version; 0 when Redis is unavailable.
func (c *Cache) FeedVersion(ctx context.Context) int64 {
	if c.Client() == nil {
		return 0
	}
	v, err := c.client.Get(ctx, feedVersion).Int64()
	if err != nil {
		return 0
	}
	return v
}

// BumpFeedVersion orphans every cached feed page; they expire with FeedTTL.
func (c *Cache) BumpFeedVersion(ctx context.Context) {
	if c.Client() == nil {
		return
	}
	c.client.Incr(ctx, feedVersion)
}

func (c *Cache) InvalidateUser(ctx context.Context, userID string) {
	c.Invalidate(ctx, UserKey(userID))
}

func (c *Cache) InvalidatePost(ctx context.Context, postID string) {
	c.Invalidate(ctx, PostKey(postID))
}
