package eventbus

import (
	"context"
	"log/slog"
	"time"
)

// Event types published by the dev server.
const (
	// TypeConfigLoaded fires once the dev config file has been parsed and sealed.
	TypeConfigLoaded = "config.loaded"
	// TypeServerStarted fires when the HTTP listener is accepting connections.
	TypeServerStarted = "server.started"
	// TypeTargetUp fires when a proxy target becomes reachable.
	TypeTargetUp = "proxy.target.up"
	// TypeTargetDown fires when a proxy target stops accepting connections.
	TypeTargetDown = "proxy.target.down"
)

// Event represents a dev server event published to the bus.
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Listener is a function that handles an event.
type Listener func(Event)

// LogListener returns a listener that writes every event to logger.
// Target-down events are logged at warn level.
func LogListener(logger *slog.Logger) Listener {
	return func(e Event) {
		attrs := make([]any, 0, 2*len(e.Payload)+2)
		attrs = append(attrs, "event", e.Type)
		for k, v := range e.Payload {
			attrs = append(attrs, k, v)
		}
		level := slog.LevelInfo
		if e.Type == TypeTargetDown {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "dev server event", attrs...)
	}
}
