package audit

import (
	"context"
	"log/slog"
)

// Worker drains a Publisher's inbox and persists the events, keeping audit
// writes off the request path. Append failures are logged, not fatal; the
// trail is best effort once the event left the handler.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run consumes until ctx is cancelled, then drains whatever is already
// buffered before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.append(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.append(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.logger.Error("audit append failed",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
}
