package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paper-pigeon/backend/internal/bootstrap"
	"github.com/paper-pigeon/backend/internal/queue"
	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/logger"
	"github.com/paper-pigeon/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	components, err := bootstrap.Setup(ctx)
	if err != nil {
		logger.Fatal("Failed to set up components", "err", err)
	}
	defer components.Close()

	if !components.Artifact.Writable() {
		logger.Fatal("Worker needs a writable artifact store", "artifact", components.Artifact.Location())
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.RebuildQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// One rebuild at a time per worker.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.RebuildQueue,
		"graph_rebuild_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.RebuildQueue, "err", err)
	}

	newRebuilder := func() queue.Rebuilder { return components.FreshRebuilder() }

	maxRetries := int(util.GetEnvNumeric("QUEUE_MAX_RETRIES", queue.DefaultMaxRetries))
	logger.Info("Listening for messages", "queue", queue.RebuildQueue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Error("Message channel closed", "queue", queue.RebuildQueue)
				return
			}

			start := time.Now()
			logger.Info("Received message", "queue", queue.RebuildQueue)

			err := queue.ProcessRebuildMessage(ctx, newRebuilder, components.Lease, components.LeaseKey, ch, msg.Body)
			if err != nil {
				logger.Error("Error processing message", "queue", queue.RebuildQueue, "err", err)
				queue.HandleProcessingError(context.WithoutCancel(ctx), consumerCh, msg, queue.RebuildQueue, maxRetries, err)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed successfully", "queue", queue.RebuildQueue)
			}

			logger.Info("Processing time", "duration", time.Since(start).Round(time.Millisecond))
		}
	}
}
