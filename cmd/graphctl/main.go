// Command graphctl rebuilds, uploads and schedules the graph artifact outside
// the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/logger"
	"github.com/paper-pigeon/backend/pkg/logger/console"
)

func newRootCommand() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "graphctl",
		Short:         "Operate the research graph artifact",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug:  debug || util.GetEnvBool("DEBUG", false),
				JSON:   util.GetEnvBool("LOG_JSON", false),
				Output: cmd.ErrOrStderr(),
			}))
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newRebuildCommand(), newUploadCommand(), newEnqueueCommand())
	return root
}

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Error("graphctl failed", "err", err)
		stop()
		os.Exit(1)
	}
}
