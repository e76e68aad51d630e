// Package logging sets up the process-wide gosteno configuration and hands
// out named loggers to the rest of the server, the way cloudfoundry-gorouter
// wires steno in src/router/logger.go.
package logging

import (
	"os"
	"sync"

	steno "github.com/cloudfoundry/gosteno"
)

var initOnce sync.Once

// Init configures the global gosteno sinks. Safe to call more than once;
// only the first call takes effect.
func Init(logFile string) {
	initOnce.Do(func() {
		sinks := []steno.Sink{steno.NewIOSink(os.Stderr)}
		if logFile != "" {
			sinks = append(sinks, steno.NewFileSink(logFile))
		}

		steno.Init(&steno.Config{
			Sinks: sinks,
			Codec: steno.NewJsonCodec(),
			Level: steno.LOG_ALL,
		})
	})
}

// For returns a named logger, e.g. logging.For("engine").
func For(name string) *steno.Logger {
	return steno.NewLogger(name)
}
