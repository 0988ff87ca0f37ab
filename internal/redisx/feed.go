package redisx

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/livedrop/livedrop/internal/domain/purchase"
)

// FeedPublisher fans completed purchases out to live subscribers over Redis
// pub/sub. Publication happens after the purchase has durably committed; a
// missed message only delays the feed until the next poll of the recent
// endpoint.
type FeedPublisher struct {
	rdb *redis.Client
}

// NewFeedPublisher returns a FeedPublisher using the given client.
func NewFeedPublisher(rdb *redis.Client) *FeedPublisher {
	return &FeedPublisher{rdb: rdb}
}

// Publish sends one message per feed entry on FeedChannel.
func (p *FeedPublisher) Publish(ctx context.Context, entries []purchase.FeedEntry) error {
	for _, entry := range entries {
		b, err := json.Marshal(entry)
		if err != nil {
			return errors.Wrap(err, "marshal feed entry")
		}
		if err := p.rdb.Publish(ctx, FeedChannel, b).Err(); err != nil {
			return errors.Wrap(err, "publish feed entry")
		}
	}
	return nil
}
