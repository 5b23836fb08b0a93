package backend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncromatics/testkit/testing/backend"
	"github.com/syncromatics/testkit/testing/backend/static"
	"github.com/syncromatics/testkit/testing/backend/testcontainers"
	"github.com/syncromatics/testkit/testing/harness"
)

func Test_New_Static(t *testing.T) {
	settings := harness.DefaultSettings()
	settings.Provisioner = harness.ProvisionerStatic

	p, err := backend.New(settings)
	require.NoError(t, err)
	assert.IsType(t, &static.Provisioner{}, p)
}

func Test_New_Testcontainers(t *testing.T) {
	settings := harness.DefaultSettings()
	settings.Provisioner = harness.ProvisionerTestcontainers

	p, err := backend.New(settings)
	require.NoError(t, err)
	assert.IsType(t, &testcontainers.Provisioner{}, p)
}

func Test_New_Unknown(t *testing.T) {
	settings := harness.DefaultSettings()
	settings.Provisioner = "podman"

	_, err := backend.New(settings)
	assert.EqualError(t, err, `unknown provisioner "podman"`)
}
