package main

import (
	"github.com/paper-pigeon/backend/internal/server"
	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/logger"
	"github.com/paper-pigeon/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	server.Init()
}
