package audit

import (
	"context"
	"time"
)

// Store persists audit events append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// Publisher captures structured audit events. By default events are appended
// synchronously; with an inbox attached they are handed to a background
// Worker instead, falling back to a synchronous append when the inbox is full
// so no event is ever dropped.
type Publisher struct {
	store Store
	inbox chan<- Event
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithInbox routes emitted events to a Worker's inbox channel.
func WithInbox(inbox chan<- Event) Option {
	return func(p *Publisher) { p.inbox = inbox }
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox != nil {
		select {
		case p.inbox <- event:
			return nil
		default:
			// Full inbox; append inline rather than drop.
		}
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) List(ctx context.Context, subject string) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}
