package rmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Producer publishes JSON-serialized messages to a single queue
type Producer interface {
	Send(ctx context.Context, data any) error
}

// Consumer receives messages from a single queue. Deliveries must be acked (or nacked)
// by the caller.
type Consumer interface {
	Close()
	Recv(ctx context.Context) (<-chan amqp.Delivery, error)
}
