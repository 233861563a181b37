// Package exec provides a testable command execution abstraction.
// Inject Runner instead of calling exec.Command directly.
package exec

import (
	"context"
	"strings"

	osexec "os/exec"
)

// Runner defines the interface for executing external commands. Every call is
// bounded by the caller's context; a cancelled or expired context forcibly
// terminates the in-flight process.
type Runner interface {
	// Run executes a command and returns combined stdout/stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunInDir executes a command in a specific directory.
	RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// OSRunner implements Runner using os/exec.
type OSRunner struct{}

// NewOSRunner creates a new OS-based command runner.
func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

// Run executes a command and returns combined output.
func (r *OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return osexec.CommandContext(ctx, name, args...).CombinedOutput()
}

// RunInDir executes a command in a specific directory.
func (r *OSRunner) RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// MockRunner implements Runner for testing.
type MockRunner struct {
	// Calls records all command invocations.
	Calls []MockCall

	// Responses maps a full command line ("name arg1 arg2") to a response.
	// A response registered under the bare command name acts as a fallback.
	Responses map[string]MockResponse
}

// MockCall records a single command invocation.
type MockCall struct {
	Name string
	Args []string
	Dir  string
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Output []byte
	Err    error
}

// NewMockRunner creates a new mock runner.
func NewMockRunner() *MockRunner {
	return &MockRunner{Responses: make(map[string]MockResponse)}
}

// AddResponse sets the response for a command line or bare command name.
func (m *MockRunner) AddResponse(commandLine string, resp MockResponse) {
	m.Responses[commandLine] = resp
}

func (m *MockRunner) respond(name string, args []string, dir string) ([]byte, error) {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args, Dir: dir})
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	if resp, ok := m.Responses[line]; ok {
		return resp.Output, resp.Err
	}
	resp := m.Responses[name]
	return resp.Output, resp.Err
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return m.respond(name, args, "")
}

func (m *MockRunner) RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	return m.respond(name, args, dir)
}
