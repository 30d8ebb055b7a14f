package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/subscriptions/pkg/config"
)

// Publisher publishes JSON messages to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes persistent JSON messages on one channel.
// amqp.Channel is not safe for concurrent publishing, so calls are serialized.
type AMQPPublisher struct {
	mu       sync.Mutex
	ch       channel
	exchange string
}

func NewAMQPPublisher(ch channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, message any) error {
	const op = "mq.Publish"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Noop drops every message.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

// Connect dials the broker, retrying up to retries times.
func Connect(url string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "mq.Connect"
	var err error
	for range retries {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

// SetupChannel opens a channel and declares the durable topic exchange.
func SetupChannel(conn *amqp.Connection, exchange string) (*amqp.Channel, error) {
	const op = "mq.SetupChannel"
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ch, nil
}

// New returns an AMQP publisher when rabbitmq.url is configured, otherwise Noop.
func New(lc fx.Lifecycle, cfg *cfgpkg.Config, l *zap.SugaredLogger) (Publisher, error) {
	if cfg.RabbitMQ.URL == "" {
		l.Infow("rabbitmq not configured, subscription events disabled")
		return Noop{}, nil
	}
	conn, err := Connect(cfg.RabbitMQ.URL, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}
	ch, err := SetupChannel(conn, cfg.RabbitMQ.Exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	l.Infow("connected to rabbitmq", "exchange", cfg.RabbitMQ.Exchange)
	lc.Append(fx.StopHook(func() error {
		l.Infow("closing rabbitmq connection")
		_ = ch.Close()
		return conn.Close()
	}))
	return NewAMQPPublisher(ch, cfg.RabbitMQ.Exchange), nil
}

var Module = fx.Options(
	fx.Provide(New),
)
