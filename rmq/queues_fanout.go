package rmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

func declareFanoutExchange(ch *amqp.Channel, exchange string) error {
	durable := true
	autoDelete := false
	internal := false
	noWait := false
	return ch.ExchangeDeclare(exchange, "fanout", durable, autoDelete, internal, noWait, nil)
}

// declareFanoutConsumerQueue declares an exclusive, server-named queue and binds it to
// the exchange, so that it lives only as long as the consumer's connection
func declareFanoutConsumerQueue(ch *amqp.Channel, exchange string) (*amqp.Queue, error) {
	durable := false
	autoDelete := true
	exclusive := true
	noWait := false
	q, err := ch.QueueDeclare("", durable, autoDelete, exclusive, noWait, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.QueueBind(q.Name, "", exchange, noWait, nil); err != nil {
		return nil, err
	}
	return &q, nil
}

type fanoutProducer struct {
	conn     *amqp.Connection
	exchange string
}

func (p *fanoutProducer) Send(ctx context.Context, data any) error {
	return publish(ctx, p.conn, p.exchange, "", data)
}

func (d *QueueDeclaration) newFanoutProducer(conn *amqp.Connection, ch *amqp.Channel) (Producer, error) {
	if err := declareFanoutExchange(ch, d.Name); err != nil {
		return nil, fmt.Errorf("failed to declare fanout exchange '%s': %w", d.Name, err)
	}
	return &fanoutProducer{conn: conn, exchange: d.Name}, nil
}

type fanoutConsumer struct {
	ch *amqp.Channel
	q  *amqp.Queue
}

func (c *fanoutConsumer) Close() {
	c.ch.Close()
}

func (c *fanoutConsumer) Recv(ctx context.Context) (<-chan amqp.Delivery, error) {
	autoAck := false
	exclusive := true
	noLocal := false
	noWait := false
	return c.ch.ConsumeWithContext(ctx, c.q.Name, "", autoAck, exclusive, noLocal, noWait, nil)
}

func (d *QueueDeclaration) newFanoutConsumer(ch *amqp.Channel) (Consumer, error) {
	if err := declareFanoutExchange(ch, d.Name); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare fanout exchange '%s': %w", d.Name, err)
	}
	q, err := declareFanoutConsumerQueue(ch, d.Name)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare consumer queue for fanout exchange '%s': %w", d.Name, err)
	}
	return &fanoutConsumer{ch: ch, q: q}, nil
}
