package rmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

func declareWorkQueue(ch *amqp.Channel, name string) (*amqp.Queue, error) {
	durable := true
	autoDelete := false
	exclusive := false
	noWait := false
	q, err := ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, nil)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

type workProducer struct {
	conn  *amqp.Connection
	queue string
}

// Send publishes via the default exchange, which routes the message straight to the
// queue named by the routing key
func (p *workProducer) Send(ctx context.Context, data any) error {
	return publish(ctx, p.conn, "", p.queue, data)
}

func (d *QueueDeclaration) newWorkProducer(conn *amqp.Connection, ch *amqp.Channel) (Producer, error) {
	q, err := declareWorkQueue(ch, d.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to declare work queue '%s': %w", d.Name, err)
	}
	return &workProducer{conn: conn, queue: q.Name}, nil
}

type workConsumer struct {
	ch *amqp.Channel
	q  *amqp.Queue
}

func (c *workConsumer) Close() {
	c.ch.Close()
}

func (c *workConsumer) Recv(ctx context.Context) (<-chan amqp.Delivery, error) {
	// Limit each consumer to one unacknowledged message so that work is spread evenly
	if err := c.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch count: %w", err)
	}
	autoAck := false
	exclusive := false
	noLocal := false
	noWait := false
	return c.ch.ConsumeWithContext(ctx, c.q.Name, "", autoAck, exclusive, noLocal, noWait, nil)
}

func (d *QueueDeclaration) newWorkConsumer(ch *amqp.Channel) (Consumer, error) {
	q, err := declareWorkQueue(ch, d.Name)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare work queue '%s': %w", d.Name, err)
	}
	return &workConsumer{ch: ch, q: q}, nil
}
