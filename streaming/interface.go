// Package streaming defines how the scheduler publishes task-lifecycle
// notifications to observers outside the dispatch loop.
package streaming

import (
	"context"
	"time"
)

// Event is one task-lifecycle notification: a task settled, was aborted,
// or migrated between priority queues. Topic names the transition,
// Priority the queue it happened on, and Detail carries
// transition-specific fields (for a migration, the source and
// destination priorities).
type Event struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Priority  string            `json:"priority,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher receives the dispatcher's lifecycle events. Publish is
// called from the dispatch path and must not block; implementations
// buffer or drop under pressure.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
