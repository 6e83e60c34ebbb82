package worker

import (
	"context"

	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/queue"
	"huddle.app/relay/internal/store"
)

// Mirrors service.StoreProvider - defined here to avoid import cycles.
type StoreProvider interface {
	Messages() store.MessageStore
	InteractionRecords() store.InteractionRecordStore
}

// Mirrors service.TxRunner - defined here to avoid import cycles.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

// Consumer abstracts the dispatch stream for testability.
type Consumer interface {
	// Read returns at most count entries.
	Read(ctx context.Context, count int64) ([]queue.Delivery, error)
	Ack(ctx context.Context, d queue.Delivery) error
	SendDLQ(ctx context.Context, d queue.Delivery, reason string) error
}

// JobDispatcher is what the pool runs for every delivery.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job queue.DispatchJob) error
}

// Announcer hands a stored message to fanout without waiting for delivery.
type Announcer interface {
	Announce(ctx context.Context, msg model.Message)
}
