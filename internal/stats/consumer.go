package stats

import (
	"context"
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"messaging-service/internal/dispatch"
	"messaging-service/internal/models"
)

// Routing keys the aggregation job publishes under.
const (
	RoutingKeyStats      = "broadcasts.stats"
	RoutingKeyTherapists = "broadcasts.therapists"
)

// Consumer feeds periodic stats_update / therapist_update payloads from
// the events exchange to admin-role channels. The payloads are opaque;
// this service only relays them.
type Consumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	dispatcher *dispatch.Dispatcher
}

// NewConsumer connects to the broker and binds the stats queue to the
// exchange. Returns an error when AMQP is unreachable; callers treat the
// consumer as optional.
func NewConsumer(amqpURL, exchange, queue string, dispatcher *dispatch.Dispatcher) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	for _, key := range []string{RoutingKeyStats, RoutingKeyTherapists} {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}

	return &Consumer{conn: conn, ch: ch, queue: queue, dispatcher: dispatcher}, nil
}

// Run consumes until the context is cancelled or the broker connection
// drops.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, "", true, false, false, false, nil)
	if err != nil {
		return err
	}

	log.Printf("stats consumer started queue=%s", c.queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			c.handle(d)
		}
	}
}

func (c *Consumer) handle(d amqp.Delivery) {
	if !json.Valid(d.Body) {
		log.Printf("stats consumer: discarding non-JSON payload key=%s", d.RoutingKey)
		return
	}

	var kind models.EventKind
	switch d.RoutingKey {
	case RoutingKeyStats:
		kind = models.EventStatsUpdate
	case RoutingKeyTherapists:
		kind = models.EventTherapistUpdate
	default:
		log.Printf("stats consumer: unknown routing key %s", d.RoutingKey)
		return
	}

	c.dispatcher.BroadcastToRole(models.RoleAdmin, models.NewAdminBroadcast(kind, d.Body))
}

// Close tears down the broker connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
