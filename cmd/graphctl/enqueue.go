package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paper-pigeon/backend/internal/queue"
)

func newEnqueueCommand() *cobra.Command {
	var message, requestedBy string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Ask a worker to rebuild the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn := queue.Init()
			defer conn.Close()

			ch, err := conn.Channel()
			if err != nil {
				return fmt.Errorf("open channel: %w", err)
			}
			defer ch.Close()

			if err := queue.SetupQueues(ch, []string{queue.RebuildQueue}); err != nil {
				return err
			}

			msg, err := queue.NewRebuildMsg(message, requestedBy)
			if err != nil {
				return err
			}
			if err := queue.PublishRebuild(cmd.Context(), ch, msg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "enqueued rebuild %s\n", msg.CorrelationID)
			return nil
		},
	}

	host, _ := os.Hostname()
	cmd.Flags().StringVar(&message, "message", "manual rebuild", "reason recorded with the request")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "graphctl@"+host, "who asked for the rebuild")
	return cmd
}
