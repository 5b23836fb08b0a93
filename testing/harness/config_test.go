package harness

import (
	"archive/tar"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func Test_SettingsFrom_Defaults(t *testing.T) {
	s, err := settingsFrom(lookupFrom(nil))
	assert.NilError(t, err)

	assert.Equal(t, s.Provisioner, ProvisionerDocker)
	assert.Equal(t, s.ReadyTimeout, 60*time.Second)
	assert.Equal(t, s.PollInterval, time.Second)
	assert.Equal(t, s.StopTimeout, 10*time.Second)
	assert.Equal(t, s.DockerAPIVersion, "1.35")
	assert.Equal(t, s.Keep, false)
}

func Test_SettingsFrom_Overrides(t *testing.T) {
	s, err := settingsFrom(lookupFrom(map[string]string{
		"TESTKIT_PROVISIONER":   "Static",
		"TESTKIT_READY_TIMEOUT": "90s",
		"TESTKIT_POLL_INTERVAL": "250ms",
		"TESTKIT_STOP_TIMEOUT":  "3s",
		"TESTKIT_KEEP":          "true",
		"DOCKER_API_VERSION":    "1.41",
		"TESTKIT_STATIC_HOST":   "redis.ci",
		"TESTKIT_STATIC_PORTS":  "6379:16379, 5432:15432",
	}))
	assert.NilError(t, err)

	assert.Equal(t, s.Provisioner, ProvisionerStatic)
	assert.Equal(t, s.ReadyTimeout, 90*time.Second)
	assert.Equal(t, s.PollInterval, 250*time.Millisecond)
	assert.Equal(t, s.StopTimeout, 3*time.Second)
	assert.Equal(t, s.Keep, true)
	assert.Equal(t, s.DockerAPIVersion, "1.41")
	assert.Equal(t, s.StaticHost, "redis.ci")
	assert.DeepEqual(t, s.StaticPorts, map[int]int{6379: 16379, 5432: 15432})
}

func Test_SettingsFrom_RejectsBadValues(t *testing.T) {
	cases := []map[string]string{
		{"TESTKIT_READY_TIMEOUT": "soon"},
		{"TESTKIT_POLL_INTERVAL": "-1s"},
		{"TESTKIT_KEEP": "maybe"},
		{"TESTKIT_STATIC_PORTS": "6379"},
		{"TESTKIT_STATIC_PORTS": "redis:6379"},
	}
	for _, env := range cases {
		_, err := settingsFrom(lookupFrom(env))
		assert.Check(t, err != nil, "%v", env)
	}
}

func Test_SettingsFromEnv_LoadsEnvFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "testkit.env")
	err := ioutil.WriteFile(file, []byte("TESTKIT_POLL_INTERVAL=2s\n"), 0o600)
	assert.NilError(t, err)

	t.Setenv("TESTKIT_ENV_FILE", file)
	t.Setenv("TESTKIT_POLL_INTERVAL", "")
	os.Unsetenv("TESTKIT_POLL_INTERVAL")

	s, err := SettingsFromEnv()
	assert.NilError(t, err)
	assert.Equal(t, s.PollInterval, 2*time.Second)
}

func Test_HostFromDockerHost(t *testing.T) {
	cases := map[string]string{
		"":                            "localhost",
		"unix:///var/run/docker.sock": "localhost",
		"npipe:////./pipe/docker":     "localhost",
		"tcp://192.168.99.100:2376":   "192.168.99.100",
		"tcp://docker:2375":           "docker",
	}
	for in, expected := range cases {
		assert.Equal(t, HostFromDockerHost(in), expected, in)
	}
}

func Test_File_Archive(t *testing.T) {
	f := File{Content: []byte("hello world"), Target: "/remote/file2.txt"}

	r, dir, err := f.Archive()
	assert.NilError(t, err)
	assert.Equal(t, dir, "/remote")

	tr := tar.NewReader(r)
	header, err := tr.Next()
	assert.NilError(t, err)
	assert.Equal(t, header.Name, "file2.txt")
	assert.Equal(t, header.Mode, int64(0o644))

	body, err := ioutil.ReadAll(tr)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(string(body), "hello world"))
}

func Test_File_Archive_ReadsSource(t *testing.T) {
	source := filepath.Join(t.TempDir(), "redis.conf")
	assert.NilError(t, ioutil.WriteFile(source, []byte("maxmemory 2mb\n"), 0o600))

	f := File{Source: source, Target: "/usr/local/etc/redis/redis.conf", Mode: 0o600}
	content, err := f.Bytes()
	assert.NilError(t, err)
	assert.Equal(t, string(content), "maxmemory 2mb\n")
	assert.Equal(t, f.FileMode(), int64(0o600))

	_, _, err = File{Source: "/does/not/exist", Target: "/x"}.Archive()
	assert.ErrorContains(t, err, "failed reading")
}

func Test_Spec_Clone_IsIndependent(t *testing.T) {
	spec := Spec{Image: "redis", Ports: []int{6379}, Bindings: map[int]int{6379: 16379}}
	c := spec.clone()

	spec.Ports[0] = 1
	spec.Bindings[6379] = 1

	assert.DeepEqual(t, c.Ports, []int{6379})
	assert.Equal(t, c.Bindings[6379], 16379)
}
