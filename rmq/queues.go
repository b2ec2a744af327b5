package rmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueType identifies how messages sent to a queue are distributed among consumers
type QueueType string

const (
	// QueueTypeFanout delivers a copy of every message to every consumer, via a fanout
	// exchange to which each consumer binds its own temporary queue
	QueueTypeFanout QueueType = "fanout"

	// QueueTypeWork delivers each message to exactly one of the queue's consumers
	QueueTypeWork QueueType = "work"
)

// QueueDeclaration records the canonical name and type of a queue
type QueueDeclaration struct {
	Name string
	Type QueueType
}

// NewProducer declares the queue on conn and returns a Producer that sends to it
func (d *QueueDeclaration) NewProducer(conn *amqp.Connection) (Producer, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if d.Type == QueueTypeFanout {
		return d.newFanoutProducer(conn, ch)
	}
	return d.newWorkProducer(conn, ch)
}

// NewConsumer declares the queue on conn and returns a Consumer that receives from it.
// The consumer owns a channel, which is released by Close.
func (d *QueueDeclaration) NewConsumer(conn *amqp.Connection) (Consumer, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if d.Type == QueueTypeFanout {
		return d.newFanoutConsumer(ch)
	}
	return d.newWorkConsumer(ch)
}

func (d *QueueDeclaration) validate() error {
	if d.Name == "" {
		return fmt.Errorf("queue declaration has no name")
	}
	if d.Type != QueueTypeFanout && d.Type != QueueTypeWork {
		return fmt.Errorf("queue '%s' has unrecognized type '%s'", d.Name, d.Type)
	}
	return nil
}
