package progress

import "context"

// Sink consumes published progress events. Implementations must be safe for
// concurrent Consume calls and must not block for long; a slow sink slows
// every publisher.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}
