package audit

import "context"

// Store persists events. Append must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader is implemented by stores that can replay the trail of a subject,
// newest first.
type Reader interface {
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
