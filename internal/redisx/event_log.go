package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// EventLog is a dedup set of processed event ids with a TTL, scoped by
// service so the webhook and the projector never share keys.
type EventLog struct {
	rdb     *redis.Client
	service string
}

func NewEventLog(rdb *redis.Client, service string) *EventLog {
	return &EventLog{rdb: rdb, service: service}
}

func (l *EventLog) key(id string) string { return fmt.Sprintf(KeyDedup, l.service, id) }

func (l *EventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, l.rdb, l.key(eventID))
}

// Mark records eventID with a plain SET, refreshing the TTL. It runs only
// after the status write, so there is no claim to win here.
func (l *EventLog) Mark(ctx context.Context, eventID string) error {
	return l.rdb.Set(ctx, l.key(eventID), "1", TTLDedup).Err()
}

// Claim marks eventID and reports whether this caller was first.
func (l *EventLog) Claim(ctx context.Context, eventID string) (bool, error) {
	return l.rdb.SetNX(ctx, l.key(eventID), "1", TTLDedup).Result()
}

// Forget drops a claim so a failed handler can be retried.
func (l *EventLog) Forget(ctx context.Context, eventID string) error {
	return l.rdb.Del(ctx, l.key(eventID)).Err()
}
