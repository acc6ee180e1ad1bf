// Package notify delivers job outcome messages to the person who requested the job.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Event is one message to one recipient.
type Event struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers events. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// LogNotifier writes events to a structured logger. It never fails.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier logs through logger, or slog.Default() when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, ev Event) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"to", ev.To,
		"subject", ev.Subject,
		"body", ev.Body,
	)
	return nil
}

// Multi sends every event to each notifier in turn. All notifiers are tried;
// their errors are joined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every event in memory. Tests use it to assert on deliveries.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Send(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
