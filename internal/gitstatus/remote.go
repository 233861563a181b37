package gitstatus

import (
	"context"
	"strings"
)

// RemoteInfo is the origin remote URL and the owner/name slug derived from
// it, when one exists.
type RemoteInfo struct {
	URL  string
	Slug string
}

// Remote returns the origin remote for the repository at root. Results are
// cached per root, including the negative result for repositories without an
// origin remote.
func (r *Resolver) Remote(root string) RemoteInfo {
	if root == "" {
		return RemoteInfo{}
	}

	r.mu.Lock()
	if info, ok := r.remotes[root]; ok {
		r.mu.Unlock()
		return info
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	info := RemoteInfo{}
	out, err := r.runner.RunInDir(ctx, root, "git", "remote", "get-url", "origin")
	if err == nil {
		info.URL = strings.TrimSpace(string(out))
		info.Slug = ParseSlug(info.URL)
	}

	r.mu.Lock()
	r.remotes[root] = info
	r.mu.Unlock()

	return info
}

// ParseSlug extracts the "owner/name" slug from a git remote URL. Handles
// https, ssh (git@host:owner/name.git), and plain host/path forms; returns
// "" when no owner/name pair can be identified.
func ParseSlug(url string) string {
	s := strings.TrimSpace(url)
	if s == "" {
		return ""
	}
	s = strings.TrimSuffix(s, ".git")

	// ssh form: git@host:owner/name
	if at := strings.Index(s, "@"); at >= 0 {
		if colon := strings.Index(s[at:], ":"); colon >= 0 {
			s = s[at+colon+1:]
			return slugFromPath(s)
		}
	}

	// url form: scheme://host/owner/name
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
		if slash := strings.Index(s, "/"); slash >= 0 {
			return slugFromPath(s[slash+1:])
		}
		return ""
	}

	return slugFromPath(s)
}

func slugFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	// Last two components: deep paths (self-hosted groups) keep owner/name.
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}
