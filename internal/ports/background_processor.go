package ports

import "context"

// BackgroundProcessor is a long-running task driven by the runtime, such as
// the outbox poller. Start blocks until the context is canceled.
type BackgroundProcessor interface {
	Start(ctx context.Context) error
}
