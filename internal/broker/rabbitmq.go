package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange carrying change events
const ExchangeName = "abx.records"

// OriginHeader names the instance that committed the write
const OriginHeader = "origin"

// confirmTimeout bounds the wait for a broker ACK when the caller's ctx has no deadline
const confirmTimeout = 10 * time.Second

// RabbitMQClient publishes change events with publisher confirms
type RabbitMQClient struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewRabbitMQClient dials the broker, declares the exchange and puts the channel in confirm mode
func NewRabbitMQClient(url string, l *slog.Logger) (*RabbitMQClient, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %v", err)
	}

	if err := declareExchange(ch); err != nil {
		ch.Close()
		c.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to activate Publisher Confirms: %v", err)
	}

	l.Info("Connected to RabbitMQ change feed", "exchange", ExchangeName)
	return &RabbitMQClient{conn: c, channel: ch, logger: l}, nil
}

// changeMessage is the wire form of a change event
func changeMessage(ev models.ChangeEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to serialize event: %v", err)
	}
	return amqp.Publishing{
		Headers:     amqp.Table{OriginHeader: ev.Origin},
		MessageId:   ev.EventID,
		ContentType: "application/json",
		// Events only matter to instances that are running now
		DeliveryMode: amqp.Transient,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}, nil
}

// PublishChange sends an event and blocks until the broker confirms it
func (r *RabbitMQClient) PublishChange(ctx context.Context, ev models.ChangeEvent) error {
	if !r.IsHealthy() {
		return fmt.Errorf("broker connection is closed")
	}

	msg, err := changeMessage(ev)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, confirmTimeout)
		defer cancel()
	}

	l := r.logger.With("event_id", ev.EventID, "routing_key", ev.RoutingKey())

	deferred, err := r.channel.PublishWithDeferredConfirmWithContext(ctx, ExchangeName, ev.RoutingKey(), false, false, msg)
	if err != nil {
		l.Error("failed to publish change event", "error", err)
		return fmt.Errorf("publish call failed: %v", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("publisher confirm not received: %w", ctx.Err())
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received for event %s", ev.EventID)
		}
		l.Debug("Change event confirmed")
		return nil
	}
}

// Close releases the channel and the connection
func (r *RabbitMQClient) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("Terminating RabbitMQ client")
		r.channel.Close()
		r.conn.Close()
	})
	return nil
}

// IsHealthy reports whether both the connection and the channel are still open
func (r *RabbitMQClient) IsHealthy() bool {
	return !r.conn.IsClosed() && !r.channel.IsClosed()
}

func declareExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare topic exchange: %v", err)
	}
	return nil
}
