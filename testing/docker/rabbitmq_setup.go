package docker

import (
	"context"
	"fmt"

	"github.com/syncromatics/testkit/amqp"
	"github.com/syncromatics/testkit/testing/harness"
)

var (
	rabbitMqImage = "rabbitmq:3.13-management"
)

// RabbitMQ ports inside the container.
const (
	AMQPPort       = 5672
	ManagementPort = 15672
)

// RabbitMQ is a running broker with a connected publisher.
type RabbitMQ struct {
	fixture

	URL           string
	ManagementURL string
	Publisher     *amqp.ExchangePublisher
}

// RabbitMQSpec describes a broker that is ready once an AMQP connection can be
// opened with the default guest account.
func RabbitMQSpec(testName string) harness.Spec {
	return harness.Spec{
		Name:  containerName(testName, "rabbitmq"),
		Image: rabbitMqImage,
		Ports: []int{AMQPPort, ManagementPort},
		Probe: pingRabbitMQ,
	}
}

func amqpURL(endpoints harness.Endpoints) (string, error) {
	endpoint, err := endpoints.Get(AMQPPort)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("amqp://guest:guest@%s", endpoint.Address()), nil
}

func pingRabbitMQ(ctx context.Context, endpoints harness.Endpoints) error {
	url, err := amqpURL(endpoints)
	if err != nil {
		return err
	}
	return amqp.Ping(ctx, url)
}

// SetupRabbitMQ sets up a RabbitMQ broker
func SetupRabbitMQ(ctx context.Context, h *harness.Harness, testName string) (*RabbitMQ, error) {
	r := &RabbitMQ{}

	f, err := acquire(ctx, h, RabbitMQSpec(testName), func(handle *harness.Handle) error {
		endpoints, err := handle.Endpoints()
		if err != nil {
			return err
		}

		r.URL, err = amqpURL(endpoints)
		if err != nil {
			return err
		}

		management, err := endpoints.Get(ManagementPort)
		if err != nil {
			return err
		}
		r.ManagementURL = fmt.Sprintf("http://%s", management.Address())

		r.Publisher = amqp.NewExchangePublisher(r.URL)
		err = r.Publisher.EnsurePublisherIsReady()
		if err != nil {
			return err
		}

		return handle.Attach(r.Publisher)
	})
	if err != nil {
		return nil, err
	}
	r.fixture = f

	return r, nil
}

// TeardownRabbitMQ closes the publisher and tears down the RabbitMQ broker
func TeardownRabbitMQ(ctx context.Context, r *RabbitMQ) error {
	if r == nil {
		return (*fixture)(nil).Teardown(ctx)
	}
	return r.Teardown(ctx)
}
