// Package gitstatus resolves repository roots and polls version-control
// state. Polling is used instead of filesystem watching because branch,
// ahead/behind, and working-tree status have no portable change-notification
// primitive; a short fixed interval bounds staleness, and structural-diff
// gating keeps notification traffic quiet between real changes.
package gitstatus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bdmorin/the-no-shop/internal/exec"
)

// Resolver maps a working directory to the top of the version-controlled
// tree containing it. Results are cached per working directory, including
// negative results for directories outside any repository.
type Resolver struct {
	mu      sync.Mutex
	runner  exec.Runner
	timeout time.Duration
	cache   map[string]string
	remotes map[string]RemoteInfo
}

// NewResolver creates a resolver using the given command runner. Each lookup
// subprocess is bounded by timeout.
func NewResolver(runner exec.Runner, timeout time.Duration) *Resolver {
	return &Resolver{
		runner:  runner,
		timeout: timeout,
		cache:   make(map[string]string),
		remotes: make(map[string]RemoteInfo),
	}
}

// Resolve returns the repository root for cwd, or "" when cwd is not inside
// a repository. Lookup failures are cached as negative results; they are not
// retried until the server restarts, matching how rarely a directory changes
// its repository membership.
func (r *Resolver) Resolve(cwd string) string {
	if cwd == "" {
		return ""
	}

	r.mu.Lock()
	if root, ok := r.cache[cwd]; ok {
		r.mu.Unlock()
		return root
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	root := ""
	out, err := r.runner.RunInDir(ctx, cwd, "git", "rev-parse", "--show-toplevel")
	if err == nil {
		root = strings.TrimSpace(string(out))
	}

	r.mu.Lock()
	r.cache[cwd] = root
	r.mu.Unlock()

	return root
}
