package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dermalink-api/internal/model"
)

const channelPrefix = "events:"

// Deliverer hands a payload to the local connections of a user.
type Deliverer interface {
	Deliver(userID string, payload []byte) int
}

// Broker publishes events on Redis and relays the ones it receives to the
// local hub.
type Broker struct {
	rdb   *redis.Client
	local Deliverer
	log   zerolog.Logger
}

func NewBroker(rdb *redis.Client, local Deliverer, l zerolog.Logger) *Broker {
	return &Broker{rdb: rdb, local: local, log: l.With().Str("component", "broker").Logger()}
}

func Channel(userID string) string {
	return channelPrefix + userID
}

func (b *Broker) Publish(ctx context.Context, userID string, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel(userID), payload).Err()
}

// Subscribe opens the pattern subscription and waits for Redis to confirm it.
func (b *Broker) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	ps := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

// Serve relays messages from ps until ctx is done. It closes ps.
func (b *Broker) Serve(ctx context.Context, ps *redis.PubSub) {
	defer ps.Close()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			uid := strings.TrimPrefix(msg.Channel, channelPrefix)
			n := b.local.Deliver(uid, []byte(msg.Payload))
			b.log.Debug().Str("user_id", uid).Int("delivered", n).Msg("event")
		}
	}
}

// Run subscribes and serves until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	ps, err := b.Subscribe(ctx)
	if err != nil {
		return err
	}
	b.Serve(ctx, ps)
	return nil
}
