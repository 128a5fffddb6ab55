package core

import amqp "github.com/rabbitmq/amqp091-go"

// IBroker is the consuming half of *rabbitmq.RabbitMQ.
type IBroker interface {
	Consume(queue string, prefetch int) (<-chan amqp.Delivery, error)
	Close() error
}

type SubscriberParams struct {
	Queue    string
	Prefetch int
}
