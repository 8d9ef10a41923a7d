package broker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ChangeHandler processes the body of one change event
type ChangeHandler interface {
	HandleChange(ctx context.Context, body []byte) error
}

// RabbitMQConsumer listens to the change feed on a queue private to this instance
type RabbitMQConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	handler  ChangeHandler
	logger   *slog.Logger
	instance string
}

func NewRabbitMQConsumer(url, instance string, handler ChangeHandler, logger *slog.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %v", err)
	}

	if err := declareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	// Invalidation is cheap; a small prefetch keeps the stream moving
	if err := ch.Qos(16, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %v", err)
	}

	return &RabbitMQConsumer{
		conn:     conn,
		channel:  ch,
		handler:  handler,
		logger:   logger,
		instance: instance,
	}, nil
}

// Listen binds the instance queue to every record event and consumes until ctx ends or the channel closes
func (c *RabbitMQConsumer) Listen(ctx context.Context) error {
	queueName := QueueName(c.instance)
	routingKey := ExchangeName + ".#"

	// Exclusive auto-delete queue: missed events while offline do not matter, the cache starts empty
	q, err := c.channel.QueueDeclare(queueName, false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %v", err)
	}

	if err := c.channel.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %v", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %v", err)
	}

	c.logger.Info("Change feed consumer is online", "queue", q.Name, "routing_key", routingKey)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			if err := c.handler.HandleChange(ctx, d.Body); err != nil {
				c.logger.Error("Dropping change event", "message_id", d.MessageId, "error", err)
				d.Nack(false, false)
				continue
			}

			if err := d.Ack(false); err != nil {
				c.logger.Error("Failed to Ack change event", "message_id", d.MessageId, "error", err)
			}
		}
	}
}

// Close gracefully terminates RabbitMQ resources
func (c *RabbitMQConsumer) Close() {
	c.logger.Info("Shutting down change feed consumer")
	c.channel.Close()
	c.conn.Close()
}

// QueueName is the per-instance queue receiving the change feed
func QueueName(instance string) string {
	return fmt.Sprintf("abx.records.watch.%s", instance)
}
