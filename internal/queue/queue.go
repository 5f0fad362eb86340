package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/logger"
)

const (
	// RebuildQueue carries requests to rebuild and persist the graph.
	RebuildQueue = "graph_rebuild_queue"

	// EventsExchange is the topic exchange graph events are published on.
	EventsExchange = "graph_events"
	// TopicRebuilt is published after a new artifact has been persisted.
	TopicRebuilt = "graph.rebuilt"

	retryDelay = 10 * time.Second
)

// Declarer is the subset of *amqp091.Channel used to declare topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
}

// Publisher is the subset of *amqp091.Channel used to publish.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// URL returns RABBITMQ_URL, or one assembled from the RABBITMQ_* parts.
func URL() string {
	if url := util.GetEnv("RABBITMQ_URL"); url != "" {
		return url
	}
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		util.GetEnvString("RABBITMQ_USER", "guest"),
		util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		util.GetEnvString("RABBITMQ_HOST", "localhost"),
		util.GetEnvString("RABBITMQ_PORT", "5672"),
	)
}

// Configured reports whether a broker has been configured at all.
func Configured() bool {
	return util.GetEnv("RABBITMQ_URL") != "" || util.GetEnv("RABBITMQ_HOST") != ""
}

func Init() *amqp091.Connection {
	conn, err := amqp091.Dial(URL())
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares each work queue with its dead-letter queue and a retry
// queue that hands messages back to the work queue after retryDelay.
func SetupQueues(ch Declarer, queueNames []string) error {
	err := ch.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // type
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("exchange declare %s: %w", EventsExchange, err)
	}

	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("queue declare %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("queue declare %s: %w", retryName, err)
		}
	}

	return nil
}

func PublishFIFO(ctx context.Context, ch Publisher, queueName string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.PublishWithContext(ctx,
		"",
		queueName,
		false,
		false,
		publishing,
	)
}

func PublishTopic(ctx context.Context, ch Publisher, topic string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType: "application/json",
		Body:        data,
		Timestamp:   time.Now(),
	}

	return ch.PublishWithContext(ctx,
		EventsExchange,
		topic,
		false,
		false,
		publishing,
	)
}
