package events

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gatedNotifier blocks every booking delivery until gate is closed.
type gatedNotifier struct {
	gate chan struct{}
	got  chan BookingEvent
}

func (g *gatedNotifier) NotifyBooking(_ context.Context, ev BookingEvent) {
	<-g.gate
	g.got <- ev
}

func (g *gatedNotifier) NotifyMessage(context.Context, MessageEvent) {}

func TestAsync_SlowSinkDoesNotBlockCaller(t *testing.T) {
	g := &gatedNotifier{gate: make(chan struct{}), got: make(chan BookingEvent, 4)}
	a := NewAsync("test", g, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	start := time.Now()
	for i := 1; i <= 3; i++ {
		a.NotifyBooking(context.Background(), BookingEvent{BookingID: uint(i)})
	}
	assert.Less(t, time.Since(start), time.Second)

	close(g.gate)
	for i := 1; i <= 3; i++ {
		select {
		case ev := <-g.got:
			assert.Equal(t, uint(i), ev.BookingID)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d was not delivered", i)
		}
	}

	cancel()
	<-done
	assert.Zero(t, a.Dropped())
}

func TestAsync_DropsWhenFullAndFlushesOnStop(t *testing.T) {
	rec := &recordingNotifier{}
	a := NewAsync("test", rec, 2, zap.NewNop())

	for i := 1; i <= 5; i++ {
		a.NotifyBooking(context.Background(), BookingEvent{BookingID: uint(i)})
	}
	a.NotifyMessage(context.Background(), MessageEvent{ID: 1})
	assert.Equal(t, uint64(4), a.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx)

	require.Len(t, rec.bookings, 2)
	assert.Equal(t, uint(1), rec.bookings[0].BookingID)
	assert.Equal(t, uint(2), rec.bookings[1].BookingID)
	assert.Empty(t, rec.messages)
}

func TestRedisRelay_DeliversLocallyWithoutSubscription(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	local := &recordingNotifier{}
	relay := NewRedisRelay(client, "bookings:test", local, zap.NewNop())
	assert.False(t, relay.Subscribed())

	relay.NotifyBooking(context.Background(), BookingEvent{BookingID: 5})
	require.Len(t, local.bookings, 1, "delivered once even though publish failed too")
	assert.Equal(t, uint(5), local.bookings[0].BookingID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, relay.Run(ctx))
	assert.False(t, relay.Subscribed())
}
