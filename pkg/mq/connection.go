package mq

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "sprintmail.events"
)

// NewConnection creates a new RabbitMQ connection, retrying with exponential backoff
// while the broker is still starting.
func NewConnection(url string) (*amqp091.Connection, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 30 * time.Second

	var conn *amqp091.Connection
	err := backoff.Retry(func() error {
		c, err := amqp091.Dial(url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the events exchange.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
