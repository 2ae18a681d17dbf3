package events

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"home-services-server/metrics"
)

// RedisRelay publishes events on a Redis channel and delivers whatever arrives on that channel
// to the local notifier, so every API replica reaches the websocket clients it holds.
// While its own subscription is down, events are also delivered to the local notifier directly.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Notifier
	log     *zap.Logger

	subscribed atomic.Bool
}

func NewRedisRelay(client *redis.Client, channel string, local Notifier, log *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, local: local, log: log}
}

func (r *RedisRelay) NotifyBooking(ctx context.Context, ev BookingEvent) {
	r.publish(ctx, Envelope{Kind: KindBooking, Booking: &ev})
}

func (r *RedisRelay) NotifyMessage(ctx context.Context, ev MessageEvent) {
	r.publish(ctx, Envelope{Kind: KindMessage, Message: &ev})
}

func (r *RedisRelay) publish(ctx context.Context, env Envelope) {
	payload, err := json.Marshal(env)
	if err == nil {
		err = r.client.Publish(context.WithoutCancel(ctx), r.channel, payload).Err()
	}
	metrics.RecordNotification("redis", err == nil)
	if err != nil {
		r.log.Warn("redis publish failed, delivering locally", zap.String("channel", r.channel), zap.Error(err))
	}
	if err != nil || !r.subscribed.Load() {
		// The published copy will not come back to this replica's clients.
		env.Dispatch(ctx, r.local)
	}
}

// Subscribed reports whether Run currently holds the channel subscription.
func (r *RedisRelay) Subscribed() bool { return r.subscribed.Load() }

// Run subscribes to the relay channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.log.Info("redis relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("drop malformed relay payload", zap.Error(err))
				continue
			}
			if !env.Dispatch(ctx, r.local) {
				r.log.Warn("drop unknown relay payload", zap.String("kind", env.Kind))
			}
		}
	}
}
