// Package logger is the process-wide structured logger shared by the graph
// server, the rebuild worker and graphctl. Messages carry a "[Component]"
// prefix (Store, Graph, Rebuild, GraphCache, Queue, Bedrock) followed by
// key/value pairs, and are fanned out to every backend passed to Init.
package logger

import "sync/atomic"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds the backends log calls are dispatched to.
type Logger struct {
	instances []LoggerInstance
}

var singleton atomic.Pointer[Logger]

// Init replaces the global backends. Logging before Init is a no-op, and
// Init() with no backends silences logging again.
func Init(instances ...LoggerInstance) {
	singleton.Store(&Logger{instances: instances})
}

func dispatch(emit func(LoggerInstance)) {
	l := singleton.Load()
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		emit(instance)
	}
}

// Log writes a message at the default level.
func Log(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Log(message, keyvals...) })
}

func Debug(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Debug(message, keyvals...) })
}

func Info(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Info(message, keyvals...) })
}

func Warn(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Warn(message, keyvals...) })
}

func Error(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Error(message, keyvals...) })
}

// Fatal writes a message at FATAL level. Backends terminate the process.
func Fatal(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Fatal(message, keyvals...) })
}
