package harness

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Provisioner names accepted in TESTKIT_PROVISIONER.
const (
	ProvisionerDocker         = "docker"
	ProvisionerDockertest     = "dockertest"
	ProvisionerTestcontainers = "testcontainers"
	ProvisionerStatic         = "static"
)

// Settings configure the harness and the backend it runs on.
type Settings struct {
	Provisioner  string
	ReadyTimeout time.Duration
	PollInterval time.Duration
	StopTimeout  time.Duration
	// Keep leaves containers running after release, for debugging.
	Keep             bool
	DockerAPIVersion string
	StaticHost       string
	StaticPorts      map[int]int
}

// DefaultSettings are used for anything the environment does not set.
func DefaultSettings() Settings {
	return Settings{
		Provisioner:      ProvisionerDocker,
		ReadyTimeout:     60 * time.Second,
		PollInterval:     1 * time.Second,
		StopTimeout:      10 * time.Second,
		DockerAPIVersion: "1.35",
		StaticHost:       "localhost",
	}
}

// SettingsFromEnv reads settings from the environment. If TESTKIT_ENV_FILE
// names a dotenv file it is loaded first; variables already set win.
func SettingsFromEnv() (Settings, error) {
	if file, ok := os.LookupEnv("TESTKIT_ENV_FILE"); ok && file != "" {
		if err := godotenv.Load(file); err != nil {
			return Settings{}, errors.Wrapf(err, "failed loading %s", file)
		}
	}
	return settingsFrom(os.LookupEnv)
}

func settingsFrom(lookup func(string) (string, bool)) (Settings, error) {
	s := DefaultSettings()

	if v, ok := lookup("TESTKIT_PROVISIONER"); ok && v != "" {
		s.Provisioner = strings.ToLower(strings.TrimSpace(v))
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"TESTKIT_READY_TIMEOUT", &s.ReadyTimeout},
		{"TESTKIT_POLL_INTERVAL", &s.PollInterval},
		{"TESTKIT_STOP_TIMEOUT", &s.StopTimeout},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Settings{}, errors.Wrapf(err, "invalid %s", d.key)
		}
		if parsed <= 0 {
			return Settings{}, errors.Errorf("%s must be positive", d.key)
		}
		*d.target = parsed
	}

	if v, ok := lookup("TESTKIT_KEEP"); ok && v != "" {
		keep, err := strconv.ParseBool(v)
		if err != nil {
			return Settings{}, errors.Wrap(err, "invalid TESTKIT_KEEP")
		}
		s.Keep = keep
	}

	if v, ok := lookup("DOCKER_API_VERSION"); ok && v != "" {
		s.DockerAPIVersion = v
	}

	if v, ok := lookup("TESTKIT_STATIC_HOST"); ok && v != "" {
		s.StaticHost = v
	}
	if v, ok := lookup("TESTKIT_STATIC_PORTS"); ok && v != "" {
		ports, err := parsePortMap(v)
		if err != nil {
			return Settings{}, errors.Wrap(err, "invalid TESTKIT_STATIC_PORTS")
		}
		s.StaticPorts = ports
	}

	return s, nil
}

// parsePortMap parses "6379:16379,5432:15432" into container -> host ports.
func parsePortMap(v string) (map[int]int, error) {
	ports := map[int]int{}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("%q is not container:host", pair)
		}
		container, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, errors.Wrapf(err, "container port in %q", pair)
		}
		host, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, errors.Wrapf(err, "host port in %q", pair)
		}
		ports[container] = host
	}
	return ports, nil
}
