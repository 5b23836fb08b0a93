package testcontainers

import (
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncromatics/testkit/testing/harness"
)

func Test_EnvMap(t *testing.T) {
	m, err := envMap([]string{"POSTGRES_PASSWORD=secret", "OPTS=a=b", "EMPTY="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"POSTGRES_PASSWORD": "secret",
		"OPTS":              "a=b",
		"EMPTY":             "",
	}, m)

	_, err = envMap([]string{"NOEQUALS"})
	assert.Error(t, err)
}

func Test_Request(t *testing.T) {
	p := New(harness.Settings{ReadyTimeout: 5 * time.Second, StopTimeout: time.Second})

	req, err := p.request(harness.Spec{
		Name:     "suite",
		Image:    "redis:7",
		Ports:    []int{6379},
		Env:      []string{"A=1"},
		Files:    []harness.File{{Content: []byte("x"), Target: "/etc/x.conf"}},
		Bindings: map[int]int{6379: 16379},
	})
	require.NoError(t, err)

	assert.Equal(t, "redis:7", req.Image)
	assert.Equal(t, []string{"6379/tcp"}, req.ExposedPorts)
	assert.Equal(t, map[string]string{"A": "1"}, req.Env)
	assert.Contains(t, req.Name, "suite_")
	require.Len(t, req.Files, 1)
	assert.Equal(t, "/etc/x.conf", req.Files[0].ContainerFilePath)
	assert.Equal(t, int64(0644), req.Files[0].FileMode)

	require.NotNil(t, req.HostConfigModifier)
	hc := &container.HostConfig{}
	req.HostConfigModifier(hc)
	assert.Equal(t, "16379", hc.PortBindings[nat.Port("6379/tcp")][0].HostPort)
}

func Test_Request_NoBindings(t *testing.T) {
	p := New(harness.DefaultSettings())

	req, err := p.request(harness.Spec{Image: "redis:7", Ports: []int{6379}})
	require.NoError(t, err)
	assert.Nil(t, req.HostConfigModifier)
	assert.Equal(t, "", req.Name)
}
