package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"home-services-server/metrics"
)

const (
	exchangeKind   = "topic"
	publishTimeout = 5 * time.Second
)

// AMQPPublisher forwards events to a topic exchange for downstream consumers
// (mailers, analytics). Routing keys are booking.<type> and message.created.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
	mu       sync.Mutex
}

func NewAMQPPublisher(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (p *AMQPPublisher) NotifyBooking(ctx context.Context, ev BookingEvent) {
	p.publish(ctx, "booking."+string(ev.Type), ev)
}

func (p *AMQPPublisher) NotifyMessage(ctx context.Context, ev MessageEvent) {
	p.publish(ctx, "message.created", ev)
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("marshal event", zap.String("routing_key", routingKey), zap.Error(err))
		return
	}

	// The request context may already be done once the response is written.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	p.mu.Unlock()

	metrics.RecordNotification("amqp", err == nil)
	if err != nil {
		p.log.Warn("publish event", zap.String("exchange", p.exchange), zap.String("routing_key", routingKey), zap.Error(err))
		return
	}
	p.log.Debug("published event", zap.String("exchange", p.exchange), zap.String("routing_key", routingKey))
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
