// Package dispatch delivers envelopes to counterparts: the broadcast fanout
// through a durable message broker, and single asynchronous callbacks back to
// their originators.
package dispatch

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultPrefetch bounds concurrent deliveries per worker process.
const DefaultPrefetch = 10

// Broker is the publish/consume contract the dispatcher runs on. The AMQP
// implementation is the production backend; tests inject their own.
type Broker interface {
	// Publish hands one job to the broker, returning once it is accepted.
	Publish(ctx context.Context, body []byte) error

	// Consume feeds jobs to handler until ctx is done. Each job is
	// acknowledged after handler returns, whatever the handler did.
	Consume(ctx context.Context, handler func(body []byte)) error
}

// AMQPBroker is a Broker over one durable fanout exchange bound to one
// durable queue. The connection and channel are created once and shared for
// the process lifetime.
type AMQPBroker struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
}

// NewAMQPBroker connects to the broker and declares the broadcast topology.
func NewAMQPBroker(url, exchange, queue string, prefetch int) (*AMQPBroker, error) {
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring queue: %w", err)
	}
	if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binding queue: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting prefetch: %w", err)
	}

	return &AMQPBroker{conn: conn, ch: ch, exchange: exchange, queue: queue}, nil
}

// Publish sends one persistent message to the fanout exchange.
func (b *AMQPBroker) Publish(ctx context.Context, body []byte) error {
	return b.ch.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume runs handler for every delivery. Deliveries are processed
// concurrently up to the prefetch bound; each is acknowledged after its
// handler returns, success or not.
func (b *AMQPBroker) Consume(ctx context.Context, handler func(body []byte)) error {
	deliveries, err := b.ch.Consume(b.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("broker channel closed")
			}
			go func(d amqp.Delivery) {
				handler(d.Body)
				d.Ack(false)
			}(delivery)
		}
	}
}

// Close releases the channel and connection.
func (b *AMQPBroker) Close() error {
	b.ch.Close()
	return b.conn.Close()
}
