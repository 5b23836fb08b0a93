package dockertest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syncromatics/testkit/testing/harness"
)

func Test_SplitImage(t *testing.T) {
	cases := []struct {
		image      string
		repository string
		tag        string
	}{
		{"redis", "redis", "latest"},
		{"redis:7", "redis", "7"},
		{"postgres:16-alpine", "postgres", "16-alpine"},
		{"localhost:5000/cache", "localhost:5000/cache", "latest"},
		{"localhost:5000/cache:1.2", "localhost:5000/cache", "1.2"},
		{"quay.io/coreos/etcd:v3.5.13", "quay.io/coreos/etcd", "v3.5.13"},
	}
	for _, c := range cases {
		repository, tag := splitImage(c.image)
		assert.Equal(t, c.repository, repository, c.image)
		assert.Equal(t, c.tag, tag, c.image)
	}
}

func Test_Name(t *testing.T) {
	assert.Equal(t, "", name(harness.Spec{Image: "redis"}))

	n := name(harness.Spec{Name: "suite", Image: "redis"})
	assert.True(t, strings.HasPrefix(n, "suite_"))
	assert.Len(t, n, len("suite_")+8)
}
