// Package notify emits processing completion events for downstream
// real-time notification. Delivery is fire-and-forget.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Event is emitted once per finished processing run.
type Event struct {
	FileID       string    `json:"file_id"`
	DepartmentID int64     `json:"department_id"`
	UserID       int64     `json:"user_id"`
	Success      bool      `json:"success"`
	State        string    `json:"state"`
	Total        int       `json:"total"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	Duplicated   int       `json:"duplicated"`
	At           time.Time `json:"at"`
}

// Notifier publishes completion events. Implementations must not block for
// long and must never fail the caller; delivery problems are logged.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event at info level.
func (n *LogNotifier) Notify(_ context.Context, ev Event) {
	n.logger.Info("Processing finished",
		slog.String("file_id", ev.FileID),
		slog.Bool("success", ev.Success),
		slog.String("state", ev.State),
		slog.Int("total", ev.Total),
		slog.Int("failed", ev.Failed),
	)
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

// Notify delivers ev to every notifier in order.
func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

// Nop discards events.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Event) {}
