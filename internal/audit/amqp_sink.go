package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jsyadav90/abcd-backend2/internal/models"
)

// Publisher is the slice of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes activity entries as persistent JSON messages.
type AMQPSink struct {
	ch         Publisher
	exchange   string
	routingKey string
}

func NewAMQPSink(ch Publisher, exchange, routingKey string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange, routingKey: routingKey}
}

func (s *AMQPSink) Write(ctx context.Context, entry *models.ActivityLog) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.ch.PublishWithContext(ctx,
		s.exchange,
		s.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
			Type:         string(entry.Action),
		},
	)
}

// DialAMQP opens a connection and channel and declares the exchange. The
// returned close function releases both.
func DialAMQP(url, exchange string) (*amqp.Channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	closeFn := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return ch, closeFn, nil
}
