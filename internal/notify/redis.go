package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "room-events:"

// RedisBus fans events out through Redis pub/sub so every API instance can
// serve a participant's event stream.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func channelFor(uid string) string {
	return channelPrefix + uid
}

func (b *RedisBus) Publish(ctx context.Context, recipients []string, ev RoomEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	for _, uid := range recipients {
		if err := b.rdb.Publish(ctx, channelFor(uid), payload).Err(); err != nil {
			return fmt.Errorf("publish room event: %w", err)
		}
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, uid string) (<-chan RoomEvent, func(), error) {
	ps := b.rdb.Subscribe(ctx, channelFor(uid))
	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns is lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe room events: %w", err)
	}

	out := make(chan RoomEvent, subscriberBuffer)
	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = ps.Close() })
	}
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ev RoomEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					log.Warn().Err(err).Str("channel", m.Channel).Msg("dropping malformed room event")
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out, cancel, nil
}

// Ping is used at startup to fail fast on a bad REDIS_ADDR.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
