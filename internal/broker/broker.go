// Package broker wires the RabbitMQ topology: a single events topic
// exchange, its dead-letter exchange/queue, a fan-in consumer queue, and a
// TTL-based delay exchange for durable retry backoff.
package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connect dials RabbitMQ, opens a channel, and declares the full topology.
// The returned close function closes the channel then the connection, in
// that order.
func Connect(user, pass, host, port string) (*amqp.Channel, func() error, error) {
	address := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp.Dial(address)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare topology: %w", err)
	}

	closeFn := func() error {
		if err := ch.Close(); err != nil {
			return err
		}
		return conn.Close()
	}

	return ch, closeFn, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s exchange: %w", EventsExchange, err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s exchange: %w", DeadLetterExchange, err)
	}
	if err := ch.ExchangeDeclare(DelayExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s exchange: %w", DelayExchange, err)
	}

	if _, err := ch.QueueDeclare(ProcessorQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": DeadLetterExchange,
		"x-dead-letter-routing-key": DeadLetterKey,
	}); err != nil {
		return fmt.Errorf("declare %s queue: %w", ProcessorQueue, err)
	}
	if err := ch.QueueBind(ProcessorQueue, "#", EventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", ProcessorQueue, EventsExchange, err)
	}

	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s queue: %w", DeadLetterQueue, err)
	}
	if err := ch.QueueBind(DeadLetterQueue, DeadLetterKey, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", DeadLetterQueue, DeadLetterExchange, err)
	}

	// The delay queue has no consumer; messages sit until their per-message
	// TTL (set at publish time) expires, then dead-letter back onto
	// EventsExchange with whatever routing key they were published under.
	if _, err := ch.QueueDeclare(DelayQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": EventsExchange,
	}); err != nil {
		return fmt.Errorf("declare %s queue: %w", DelayQueue, err)
	}
	if err := ch.QueueBind(DelayQueue, "#", DelayExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", DelayQueue, DelayExchange, err)
	}

	return nil
}
