package interfaces

import "context"

// Bus carries raw alert payloads from the webhook to the workers.
type Bus interface {
	// Publish returns the number of subscribers that received the payload.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)

	// Subscribe delivers payloads to handler until ctx is done or the
	// subscription fails.
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error

	Close() error
}
