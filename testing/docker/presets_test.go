package docker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syncromatics/testkit/testing/docker"
)

func Test_PostgresSpec(t *testing.T) {
	spec := docker.PostgresSpec("test")

	assert.Equal(t, "test_postgres_db", spec.Name)
	assert.Equal(t, "postgres:16-alpine", spec.Image)
	assert.Equal(t, []int{5432}, spec.Ports)
	assert.Contains(t, spec.Env, "POSTGRES_DB=test")
	assert.NotNil(t, spec.Probe)
}

func Test_RabbitMQSpec(t *testing.T) {
	spec := docker.RabbitMQSpec("test")

	assert.Equal(t, "test_rabbitmq", spec.Name)
	assert.Equal(t, []int{5672, 15672}, spec.Ports)
	assert.NotNil(t, spec.Probe)
}

func Test_KafkaSpec_AdvertisesBoundPort(t *testing.T) {
	spec := docker.KafkaSpec("test", 29092)

	assert.Equal(t, "apache/kafka:3.7.0", spec.Image)
	assert.Equal(t, map[int]int{9092: 29092}, spec.Bindings)
	assert.Contains(t, spec.Env, "KAFKA_ADVERTISED_LISTENERS=PLAINTEXT://localhost:29092")
}

func Test_MSSqlSpec(t *testing.T) {
	image := "mcr.microsoft.com/mssql/server:2022-latest"
	spec := docker.MSSqlSpec(docker.DatabaseSetup{
		TestName:      "test",
		DatabaseImage: &image,
		UserName:      "sa",
		Password:      "superS3cureP@ssword",
	})

	assert.Equal(t, image, spec.Image)
	assert.Equal(t, "test_database_test", spec.Name)
	assert.Contains(t, spec.Env, "ACCEPT_EULA=Y")
	assert.Contains(t, spec.Env, "MSSQL_SA_PASSWORD=superS3cureP@ssword")

	spec = docker.MSSqlSpec(docker.DatabaseSetup{TestName: "test"})
	assert.Equal(t, "mcr.microsoft.com/mssql/server:2019-latest", spec.Image)
}

func Test_EtcdSpec(t *testing.T) {
	spec := docker.EtcdSpec("")

	assert.Equal(t, "etcd_db", spec.Name)
	assert.Equal(t, []int{2379}, spec.Ports)
	assert.Equal(t, "/usr/local/bin/etcd", spec.Cmd[0])
}
