package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/paper-pigeon/backend/pkg/logger"
)

// Subscriber is the subset of *amqp091.Channel used to follow graph events.
type Subscriber interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
}

// SubscribeRebuilt calls fn for every TopicRebuilt event until ctx is done or
// the channel closes. Each subscriber gets its own exclusive queue, so every
// server instance sees every event.
func SubscribeRebuilt(ctx context.Context, ch Subscriber, fn func(ctx context.Context, event QueueRebuiltEvent)) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare %s: %w", EventsExchange, err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // autoDelete
		true,  // exclusive
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	if err := ch.QueueBind(q.Name, TopicRebuilt, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("queue bind %s: %w", q.Name, err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("[Queue] Event channel closed")
					return
				}
				var event QueueRebuiltEvent
				if err := json.Unmarshal(msg.Body, &event); err != nil {
					logger.Warn("[Queue] Ignoring malformed event", "topic", msg.RoutingKey, "err", err)
					continue
				}
				fn(ctx, event)
			}
		}
	}()

	return nil
}
