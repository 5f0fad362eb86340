package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"

	"github.com/paper-pigeon/backend/internal/rebuild"
	"github.com/paper-pigeon/backend/pkg/leaselock"
	"github.com/paper-pigeon/backend/pkg/logger"
)

// DefaultMaxRetries is how often a failed message is retried before it is
// moved to the dead-letter queue.
const DefaultMaxRetries = 10

// ErrMalformed marks messages that can never succeed. They skip the retry
// queue.
var ErrMalformed = errors.New("malformed message")

type QueueRebuildMsg struct {
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlation_id"`
	RequestedBy   string    `json:"requested_by,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

type QueueRebuiltEvent struct {
	CorrelationID string    `json:"correlation_id"`
	RebuildID     string    `json:"rebuild_id"`
	Nodes         int       `json:"nodes"`
	Links         int       `json:"links"`
	FinishedAt    time.Time `json:"finished_at"`
}

type Rebuilder interface {
	RebuildAndPersist(ctx context.Context) (*rebuild.Result, error)
}

// NewRebuildMsg returns a message with a fresh correlation id.
func NewRebuildMsg(message, requestedBy string) (QueueRebuildMsg, error) {
	id, err := gonanoid.New()
	if err != nil {
		return QueueRebuildMsg{}, err
	}
	return QueueRebuildMsg{
		Message:       message,
		CorrelationID: id,
		RequestedBy:   requestedBy,
		RequestedAt:   time.Now().UTC(),
	}, nil
}

func PublishRebuild(ctx context.Context, ch Publisher, msg QueueRebuildMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ctx, ch, RebuildQueue, data)
}

// ProcessRebuildMessage rebuilds and persists the graph under the rebuild
// lease, with a Rebuilder from newRebuilder so every message reads the
// store afresh. When another process holds the lease the message is dropped: the
// running rebuild reads the same source data. On success a TopicRebuilt event
// is published so servers can reload the artifact.
func ProcessRebuildMessage(
	ctx context.Context,
	newRebuilder func() Rebuilder,
	lease leaselock.Locker,
	leaseKey string,
	events Publisher,
	body []byte,
) error {
	var msg QueueRebuildMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	logger.Info("[Queue] Rebuild requested", "correlation_id", msg.CorrelationID, "requested_by", msg.RequestedBy, "message", msg.Message)

	var res *rebuild.Result
	err := lease.WithLease(ctx, leaseKey, func(ctx context.Context) error {
		var err error
		res, err = newRebuilder().RebuildAndPersist(ctx)
		return err
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Queue] Rebuild already running elsewhere, dropping request", "correlation_id", msg.CorrelationID)
		return nil
	}
	if err != nil {
		return err
	}

	if events == nil {
		return nil
	}
	event, _ := json.Marshal(QueueRebuiltEvent{
		CorrelationID: msg.CorrelationID,
		RebuildID:     res.RebuildID,
		Nodes:         res.Nodes(),
		Links:         res.Links(),
		FinishedAt:    time.Now().UTC(),
	})
	if err := PublishTopic(ctx, events, TopicRebuilt, event); err != nil {
		// The artifact is persisted; servers pick it up on their next reload.
		logger.Warn("[Queue] Failed to publish rebuilt event", "correlation_id", msg.CorrelationID, "err", err)
	}
	return nil
}

// HandleProcessingError sends a failed message to the retry queue, or to the
// dead-letter queue once it has been retried maxRetries times or can never
// succeed.
func HandleProcessingError(ctx context.Context, ch Publisher, msg amqp091.Delivery, queueName string, maxRetries int, procErr error) {
	retries := retryCount(msg.Headers)

	if retries >= maxRetries || errors.Is(procErr, ErrMalformed) {
		dlqName := queueName + "_dlq"
		logger.Warn("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries, "err", procErr)
		pubErr := ch.PublishWithContext(ctx,
			"",
			dlqName,
			false,
			false,
			amqp091.Publishing{
				ContentType:  msg.ContentType,
				Body:         msg.Body,
				Headers:      msg.Headers,
				DeliveryMode: amqp091.Persistent,
			},
		)
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.PublishWithContext(ctx,
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      headers,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
