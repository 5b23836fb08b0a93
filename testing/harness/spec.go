package harness

import (
	"archive/tar"
	"bytes"
	"io/ioutil"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Spec describes the container to acquire.
type Spec struct {
	// Name prefixes the container name. Backends append a unique suffix.
	Name  string
	Image string
	// Ports are the container ports to expose, in declaration order.
	Ports []int
	Env   []string
	Cmd   []string
	Files []File
	// Bindings pins a container port to a fixed host port.
	Bindings map[int]int
	// Probe is run after every port is reachable, until it succeeds.
	Probe Probe
}

// File is injected into the container before it starts. Exactly one of
// Source and Content is used; Content wins when both are set.
type File struct {
	Source  string
	Content []byte
	Target  string
	Mode    int64
}

func (s Spec) clone() Spec {
	c := s
	c.Ports = append([]int(nil), s.Ports...)
	c.Env = append([]string(nil), s.Env...)
	c.Cmd = append([]string(nil), s.Cmd...)
	c.Files = append([]File(nil), s.Files...)
	if s.Bindings != nil {
		c.Bindings = make(map[int]int, len(s.Bindings))
		for k, v := range s.Bindings {
			c.Bindings[k] = v
		}
	}
	return c
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Image) == "" {
		return errors.New("image is required")
	}
	if len(s.Ports) == 0 {
		return errors.New("at least one port must be exposed")
	}

	seen := map[int]bool{}
	for _, p := range s.Ports {
		if p <= 0 || p > 65535 {
			return errors.Errorf("port %d is out of range", p)
		}
		if seen[p] {
			return errors.Errorf("port %d is declared twice", p)
		}
		seen[p] = true
	}
	for p := range s.Bindings {
		if !seen[p] {
			return errors.Errorf("binding for undeclared port %d", p)
		}
	}
	for _, f := range s.Files {
		if !path.IsAbs(f.Target) {
			return errors.Errorf("file target %q must be absolute", f.Target)
		}
		if f.Content == nil && f.Source == "" {
			return errors.Errorf("file %q has no source or content", f.Target)
		}
	}
	return nil
}

// Bytes returns the file contents, reading Source when Content is unset.
func (f File) Bytes() ([]byte, error) {
	if f.Content != nil {
		return f.Content, nil
	}
	b, err := ioutil.ReadFile(f.Source)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading %s", f.Source)
	}
	return b, nil
}

// FileMode returns Mode, defaulting to 0644.
func (f File) FileMode() int64 {
	if f.Mode == 0 {
		return 0o644
	}
	return f.Mode
}

// Archive returns a tar stream holding the file and the directory it must be
// extracted into.
func (f File) Archive() (*bytes.Reader, string, error) {
	content, err := f.Bytes()
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err = tw.WriteHeader(&tar.Header{
		Name:    path.Base(f.Target),
		Mode:    f.FileMode(),
		Size:    int64(len(content)),
		ModTime: time.Now(),
	})
	if err != nil {
		return nil, "", errors.Wrap(err, "failed writing tar header")
	}
	if _, err = tw.Write(content); err != nil {
		return nil, "", errors.Wrap(err, "failed writing tar body")
	}
	if err = tw.Close(); err != nil {
		return nil, "", errors.Wrap(err, "failed closing tar")
	}

	return bytes.NewReader(buf.Bytes()), path.Dir(f.Target), nil
}
