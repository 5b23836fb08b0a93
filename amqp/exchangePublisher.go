// Package amqp holds the RabbitMQ readiness check and a small publisher for
// seeding exchanges in tests.
package amqp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

// Ping dials the broker and closes the connection. The dial and the AMQP
// handshake are bounded by ctx.
func Ping(ctx context.Context, amqpURL string) error {
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      contextDialer(ctx),
	})
	if err != nil {
		return errors.Wrap(err, "failed to connect to broker")
	}
	return conn.Close()
}

// contextDialer dials with ctx and carries its deadline over to the
// handshake. The client clears the deadline once the connection is open.
func contextDialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		if deadline, ok := ctx.Deadline(); ok {
			err = conn.SetDeadline(deadline)
			if err != nil {
				conn.Close()
				return nil, err
			}
		}
		return conn, nil
	}
}

// ExchangePublisher is a service for publishing messages to an exchange
type ExchangePublisher struct {
	amqpURL string

	mtx        sync.Mutex
	connection *amqp.Connection
}

// NewExchangePublisher creates a Publisher
func NewExchangePublisher(amqpURL string) *ExchangePublisher {
	return &ExchangePublisher{
		amqpURL: amqpURL,
	}
}

// EnsurePublisherIsReady ensures that the publisher is ready to send messages
func (p *ExchangePublisher) EnsurePublisherIsReady() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.connection != nil && !p.connection.IsClosed() {
		return nil
	}

	var err error
	p.connection, err = amqp.Dial(p.amqpURL)
	if err != nil {
		p.connection = nil
		return errors.Wrap(err, "failed to connect to broker")
	}

	return nil
}

// DeclareExchange declares a durable topic exchange.
func (p *ExchangePublisher) DeclareExchange(exchangeName string) error {
	channel, err := p.channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	err = channel.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to declare exchange %s", exchangeName)
	}
	return nil
}

// Publish publishes a message to the given exchange
func (p *ExchangePublisher) Publish(exchangeName string, headers map[string]string, body []byte) error {
	channel, err := p.channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	headersTable := make(amqp.Table)
	for k, v := range headers {
		headersTable[k] = v
	}
	err = channel.Publish(exchangeName, "", false, false, amqp.Publishing{
		Headers: headersTable,
		Body:    body,
	})
	if err != nil {
		return errors.Wrap(err, "failed to publish message")
	}

	return nil
}

// Close closes the broker connection. It is safe to call more than once.
func (p *ExchangePublisher) Close() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.connection == nil {
		return nil
	}
	conn := p.connection
	p.connection = nil

	if conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func (p *ExchangePublisher) channel() (*amqp.Channel, error) {
	p.mtx.Lock()
	conn := p.connection
	p.mtx.Unlock()

	if conn == nil {
		return nil, errors.New("publisher is not ready")
	}

	channel, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open channel to broker")
	}
	return channel, nil
}
