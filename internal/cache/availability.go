// Package cache holds the Redis read-through cache for derived
// availability. Everything here is best-effort: a cache failure must
// never fail the request it decorates.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stagepass/ticketing/internal/domain"
)

const keyPrefix = "availability:"

type Availability struct {
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewAvailability(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *Availability {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Availability{client: client, ttl: ttl, log: log}
}

func (c *Availability) GetAvailability(ctx context.Context, eventID string) ([]domain.ItemAvailability, bool) {
	raw, err := c.client.Get(ctx, keyPrefix+eventID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Debug("availability cache read failed")
		}
		return nil, false
	}

	var items []domain.ItemAvailability
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

func (c *Availability) SetAvailability(ctx context.Context, eventID string, items []domain.ItemAvailability) {
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+eventID, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("availability cache write failed")
	}
}

func (c *Availability) Invalidate(ctx context.Context, eventIDs ...string) {
	if len(eventIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		keys = append(keys, keyPrefix+id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Debug("availability cache invalidation failed")
	}
}

// Noop satisfies the cache port when Redis is disabled.
type Noop struct{}

func (Noop) GetAvailability(context.Context, string) ([]domain.ItemAvailability, bool) {
	return nil, false
}
func (Noop) SetAvailability(context.Context, string, []domain.ItemAvailability) {}
func (Noop) Invalidate(context.Context, ...string)                             {}
