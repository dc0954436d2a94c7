package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/streadway/amqp"

	"caseline/internal/config"
)

// AMQPSink publishes envelopes to a topic exchange using the event type as
// routing key, so consumers can bind on patterns such as "action.*". A
// dropped connection or channel is redialed on the next delivery.
type AMQPSink struct {
	mu       sync.Mutex
	url      string
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	filter   Filter
}

func NewAMQPSink(cfg config.BrokerConfig) (*AMQPSink, error) {
	s := &AMQPSink{url: cfg.URL, exchange: cfg.Exchange, filter: NewFilter(cfg.Events)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connectLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AMQPSink) connectLocked() error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		s.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	s.conn = conn
	s.channel = channel
	return nil
}

func (s *AMQPSink) closeLocked() {
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && (amqpErr.Code == amqp.ChannelError || amqpErr.Code == amqp.ConnectionForced) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}

func (s *AMQPSink) Name() string { return "amqp:" + s.exchange }

func (s *AMQPSink) Accepts(evtType string) bool { return s.filter.Match(evtType) }

func (s *AMQPSink) Deliver(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    env.TS,
		MessageId:    strconv.FormatInt(env.ID, 10),
		Type:         env.Type,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.conn.IsClosed() || s.channel == nil {
		s.closeLocked()
		if err := s.connectLocked(); err != nil {
			return err
		}
	}
	err = s.channel.Publish(s.exchange, env.Type, false, false, msg)
	if isConnClosedErr(err) {
		s.closeLocked()
		if connErr := s.connectLocked(); connErr != nil {
			return fmt.Errorf("failed to publish event: %w (reconnect failed: %v)", err, connErr)
		}
		err = s.channel.Publish(s.exchange, env.Type, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.channel != nil {
		err = s.channel.Close()
		s.channel = nil
	}
	if s.conn != nil {
		if connErr := s.conn.Close(); err == nil {
			err = connErr
		}
		s.conn = nil
	}
	return err
}
