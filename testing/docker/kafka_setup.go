package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/phayes/freeport"
	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/testing/harness"
)

var (
	kafkaImage = "apache/kafka:3.7.0"
)

// KafkaPort is the client listener inside the container.
const KafkaPort = 9092

// Kafka is a single node KRaft broker.
type Kafka struct {
	fixture

	ExternalBroker string
}

// KafkaSpec describes a broker published on hostPort. The broker advertises
// localhost:hostPort, so the port has to be fixed before the container starts.
func KafkaSpec(testName string, hostPort int) harness.Spec {
	return harness.Spec{
		Name:  containerName(testName, "kafka_broker"),
		Image: kafkaImage,
		Ports: []int{KafkaPort},
		Env: []string{
			"KAFKA_NODE_ID=1",
			"KAFKA_PROCESS_ROLES=broker,controller",
			"KAFKA_LISTENERS=PLAINTEXT://:9092,CONTROLLER://:9093",
			fmt.Sprintf("KAFKA_ADVERTISED_LISTENERS=PLAINTEXT://localhost:%d", hostPort),
			"KAFKA_CONTROLLER_LISTENER_NAMES=CONTROLLER",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP=CONTROLLER:PLAINTEXT,PLAINTEXT:PLAINTEXT",
			"KAFKA_CONTROLLER_QUORUM_VOTERS=1@localhost:9093",
			"KAFKA_NUM_PARTITIONS=10",
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR=1",
			"KAFKA_TRANSACTION_STATE_LOG_REPLICATION_FACTOR=1",
			"KAFKA_TRANSACTION_STATE_LOG_MIN_ISR=1",
			"KAFKA_GROUP_INITIAL_REBALANCE_DELAY_MS=0",
		},
		Bindings: map[int]int{KafkaPort: hostPort},
		Probe:    describeKafkaCluster,
	}
}

func kafkaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Admin.Retry.Max = 0
	config.Metadata.Retry.Max = 0
	return config
}

// describeKafkaCluster succeeds once the broker answers metadata requests
// through a cluster admin.
func describeKafkaCluster(ctx context.Context, endpoints harness.Endpoints) error {
	endpoint, err := endpoints.Get(KafkaPort)
	if err != nil {
		return err
	}

	config := kafkaConfig()
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			config.Net.DialTimeout = remaining
		}
	}

	clusterAdmin, err := sarama.NewClusterAdmin([]string{endpoint.Address()}, config)
	if err != nil {
		return errors.Wrap(err, "failed connecting with sarama")
	}
	defer clusterAdmin.Close()

	brokers, _, err := clusterAdmin.DescribeCluster()
	if err != nil {
		return errors.Wrap(err, "failed describing cluster")
	}
	if len(brokers) == 0 {
		return errors.New("cluster has no brokers yet")
	}
	return nil
}

// SetupKafka sets up a kafka broker
func SetupKafka(ctx context.Context, h *harness.Harness, testName string) (*Kafka, error) {
	kafkaPort, err := freeport.GetFreePort()
	if err != nil {
		return nil, errors.Wrap(err, "failed finding a free port for kafka")
	}

	k := &Kafka{}

	f, err := acquire(ctx, h, KafkaSpec(testName, kafkaPort), func(handle *harness.Handle) error {
		endpoint, err := handle.Endpoint(KafkaPort)
		if err != nil {
			return err
		}
		k.ExternalBroker = endpoint.Address()
		return nil
	})
	if err != nil {
		return nil, err
	}
	k.fixture = f

	return k, nil
}

// TeardownKafka tears down the kafka broker
func TeardownKafka(ctx context.Context, k *Kafka) error {
	if k == nil {
		return (*fixture)(nil).Teardown(ctx)
	}
	return k.Teardown(ctx)
}
