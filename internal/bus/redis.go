// Package bus fans relay messages out across relay instances through a
// redis pub/sub channel. Delivery is at-most-once, like the relay itself.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Canvas/internal/relay"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// envelope tags a relay message with the instance that published it, so
// an instance can skip its own traffic.
type envelope struct {
	Origin string        `json:"origin"`
	Msg    relay.Message `json:"msg"`
}

type Redis struct {
	rdb      *redis.Client
	channel  string
	instance string
	log      zerolog.Logger
}

func NewRedis(opts *redis.Options, channel string) (*Redis, error) {
	if channel == "" {
		return nil, errors.New("redis channel cannot be empty")
	}
	instance := uuid.NewString()
	return &Redis{
		rdb:      redis.NewClient(opts),
		channel:  channel,
		instance: instance,
		log:      log.With().Str("module", "bus").Str("instance", instance).Str("channel", channel).Logger(),
	}, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Instance() string { return r.instance }

// Publish implements relay.Publisher.
func (r *Redis) Publish(ctx context.Context, m relay.Message) error {
	raw, err := json.Marshal(envelope{Origin: r.instance, Msg: m})
	if err != nil {
		return fmt.Errorf("marshal bus message: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Subscription delivers messages published by other instances. Close it
// when done; ctx cancellation also stops it.
type Subscription struct {
	messages <-chan relay.Message
	cancel   func()
	once     sync.Once
}

func (s *Subscription) Messages() <-chan relay.Message { return s.messages }

func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe returns once redis has confirmed the subscription.
func (r *Redis) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan relay.Message, 64)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.log.Warn().Err(err).Msg("bad bus message")
					continue
				}
				if env.Origin == r.instance {
					continue
				}
				select {
				case out <- env.Msg:
				case <-subCtx.Done():
					return
				default:
					r.log.Warn().Msg("bus consumer slow, message dropped")
				}
			}
		}
	}()

	return &Subscription{messages: out, cancel: cancel}, nil
}

// Pump delivers every message from sub to hub until sub ends.
func Pump(sub *Subscription, hub interface{ Deliver(relay.Message) }) {
	for m := range sub.Messages() {
		hub.Deliver(m)
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
