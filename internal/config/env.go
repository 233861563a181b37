// Package config provides centralized configuration for the coordination
// server. Settings come from the environment, falling back to an optional
// YAML file (~/.noshop.yaml), falling back to defaults.
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds all server configuration.
type Settings struct {
	// Addr is the loopback listen address (NOSHOP_ADDR).
	Addr string

	// ProjectsDir is the directory holding per-session transcript logs
	// (NOSHOP_PROJECTS_DIR, default ~/.claude/projects).
	ProjectsDir string

	// PollInterval is the repository status polling cadence (NOSHOP_POLL_INTERVAL).
	PollInterval time.Duration

	// HeartbeatInterval is the transcript stats heartbeat cadence
	// (NOSHOP_HEARTBEAT_INTERVAL).
	HeartbeatInterval time.Duration

	// StatsTTL bounds how long cached transcript stats are served without a
	// re-scan (NOSHOP_STATS_TTL).
	StatsTTL time.Duration

	// ExecTimeout bounds every external subprocess invocation (NOSHOP_EXEC_TIMEOUT).
	ExecTimeout time.Duration
}

// fileSettings mirrors the optional YAML config file.
type fileSettings struct {
	Addr              string `yaml:"addr"`
	ProjectsDir       string `yaml:"projects_dir"`
	PollInterval      string `yaml:"poll_interval"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	StatsTTL          string `yaml:"stats_ttl"`
	ExecTimeout       string `yaml:"exec_timeout"`
}

var (
	settings *Settings
	once     sync.Once
)

// Load returns the singleton configuration. Thread-safe, loads once on first
// call. Environment variables win over the config file; the config file wins
// over defaults.
func Load() *Settings {
	once.Do(func() {
		settings = load(defaultFilePath())
	})
	return settings
}

// Reset clears the cached configuration (for testing).
func Reset() {
	once = sync.Once{}
	settings = nil
}

func load(filePath string) *Settings {
	file := readFile(filePath)

	home, _ := os.UserHomeDir()
	s := &Settings{
		Addr:              "127.0.0.1:4519",
		ProjectsDir:       filepath.Join(home, ".claude", "projects"),
		PollInterval:      10 * time.Second,
		HeartbeatInterval: 8 * time.Second,
		StatsTTL:          10 * time.Second,
		ExecTimeout:       5 * time.Second,
	}

	if file.Addr != "" {
		s.Addr = file.Addr
	}
	if file.ProjectsDir != "" {
		s.ProjectsDir = file.ProjectsDir
	}
	applyDuration(&s.PollInterval, file.PollInterval)
	applyDuration(&s.HeartbeatInterval, file.HeartbeatInterval)
	applyDuration(&s.StatsTTL, file.StatsTTL)
	applyDuration(&s.ExecTimeout, file.ExecTimeout)

	if v := os.Getenv("NOSHOP_ADDR"); v != "" {
		s.Addr = v
	}
	if v := os.Getenv("NOSHOP_PROJECTS_DIR"); v != "" {
		s.ProjectsDir = v
	}
	applyDuration(&s.PollInterval, os.Getenv("NOSHOP_POLL_INTERVAL"))
	applyDuration(&s.HeartbeatInterval, os.Getenv("NOSHOP_HEARTBEAT_INTERVAL"))
	applyDuration(&s.StatsTTL, os.Getenv("NOSHOP_STATS_TTL"))
	applyDuration(&s.ExecTimeout, os.Getenv("NOSHOP_EXEC_TIMEOUT"))

	return s
}

// readFile parses the YAML config file. A missing or malformed file yields
// zero values; config problems never prevent startup.
func readFile(path string) fileSettings {
	var fs fileSettings
	if path == "" {
		return fs
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fs
	}
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return fileSettings{}
	}
	return fs
}

func defaultFilePath() string {
	if v := os.Getenv("NOSHOP_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".noshop.yaml")
}

func applyDuration(dst *time.Duration, value string) {
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		*dst = d
	}
}
