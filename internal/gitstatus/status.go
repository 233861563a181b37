package gitstatus

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bdmorin/the-no-shop/internal/domain"
	"github.com/bdmorin/the-no-shop/internal/exec"
)

// Fetcher runs one git status invocation per call, bounded by a timeout.
type Fetcher struct {
	runner  exec.Runner
	timeout time.Duration
}

// NewFetcher creates a status fetcher using the given command runner.
func NewFetcher(runner exec.Runner, timeout time.Duration) *Fetcher {
	return &Fetcher{runner: runner, timeout: timeout}
}

// Fetch returns the current status snapshot for the repository at root.
// A timeout or command failure is an error for the caller to treat as
// "no update"; it is never fatal.
func (f *Fetcher) Fetch(root string) (domain.RepoStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	out, err := f.runner.RunInDir(ctx, root, "git", "status", "--porcelain=v2", "--branch")
	if err != nil {
		return domain.RepoStatus{}, fmt.Errorf("git status in %s: %w", root, err)
	}

	return ParseStatus(out), nil
}

// ParseStatus decodes `git status --porcelain=v2 --branch` output into a
// status snapshot.
func ParseStatus(out []byte) domain.RepoStatus {
	var st domain.RepoStatus

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "# branch.head "):
			st.Branch = strings.TrimPrefix(line, "# branch.head ")
		case strings.HasPrefix(line, "# branch.ab "):
			st.Ahead, st.Behind = parseAheadBehind(strings.TrimPrefix(line, "# branch.ab "))
		case strings.HasPrefix(line, "1 "), strings.HasPrefix(line, "2 "):
			fields := strings.SplitN(line, " ", 3)
			if len(fields) < 2 || len(fields[1]) < 2 {
				continue
			}
			if fields[1][0] != '.' {
				st.Staged++
			}
			if fields[1][1] != '.' {
				st.Modified++
			}
		case strings.HasPrefix(line, "u "):
			st.Conflicted++
		case strings.HasPrefix(line, "? "):
			st.Untracked++
		}
	}

	return st
}

// parseAheadBehind decodes "+N -M".
func parseAheadBehind(s string) (ahead, behind int) {
	for _, field := range strings.Fields(s) {
		if len(field) < 2 {
			continue
		}
		n, err := strconv.Atoi(field[1:])
		if err != nil {
			continue
		}
		switch field[0] {
		case '+':
			ahead = n
		case '-':
			behind = n
		}
	}
	return ahead, behind
}
