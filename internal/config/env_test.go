package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()

	s := load("")

	assert.Equal(t, "127.0.0.1:4519", s.Addr)
	assert.Equal(t, 10*time.Second, s.PollInterval)
	assert.Equal(t, 8*time.Second, s.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, s.StatsTTL)
	assert.Equal(t, 5*time.Second, s.ExecTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	Reset()
	os.Setenv("NOSHOP_ADDR", "127.0.0.1:9999")
	os.Setenv("NOSHOP_POLL_INTERVAL", "30s")
	defer func() {
		os.Unsetenv("NOSHOP_ADDR")
		os.Unsetenv("NOSHOP_POLL_INTERVAL")
		Reset()
	}()

	s := load("")

	assert.Equal(t, "127.0.0.1:9999", s.Addr)
	assert.Equal(t, 30*time.Second, s.PollInterval)
}

func TestLoadConfigFile(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "noshop.yaml")
	content := "addr: 127.0.0.1:4600\nprojects_dir: /tmp/projects\nheartbeat_interval: 15s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := load(path)

	assert.Equal(t, "127.0.0.1:4600", s.Addr)
	assert.Equal(t, "/tmp/projects", s.ProjectsDir)
	assert.Equal(t, 15*time.Second, s.HeartbeatInterval)
}

func TestEnvWinsOverFile(t *testing.T) {
	Reset()
	os.Setenv("NOSHOP_ADDR", "127.0.0.1:7000")
	defer func() {
		os.Unsetenv("NOSHOP_ADDR")
		Reset()
	}()

	path := filepath.Join(t.TempDir(), "noshop.yaml")
	if err := os.WriteFile(path, []byte("addr: 127.0.0.1:4600\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := load(path)

	assert.Equal(t, "127.0.0.1:7000", s.Addr)
}

func TestMalformedFileIgnored(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "noshop.yaml")
	if err := os.WriteFile(path, []byte(":\n\tnot yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := load(path)

	assert.Equal(t, "127.0.0.1:4519", s.Addr)
}

func TestInvalidDurationIgnored(t *testing.T) {
	Reset()
	os.Setenv("NOSHOP_STATS_TTL", "soon")
	defer func() {
		os.Unsetenv("NOSHOP_STATS_TTL")
		Reset()
	}()

	s := load("")

	assert.Equal(t, 10*time.Second, s.StatsTTL)
}
