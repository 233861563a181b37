package transcript

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// LocatePath derives the transcript log path for a session. The path is
// deterministic: <projectsDir>/<sanitized cwd>/<sessionID>.jsonl. When the
// derived file does not exist, a glob search over the projects directory
// recovers transcripts for sessions started under a different working
// directory spelling. Returns "" when nothing is found.
func LocatePath(projectsDir, cwd, sessionID string) string {
	if projectsDir == "" || sessionID == "" {
		return ""
	}

	if cwd != "" {
		derived := filepath.Join(projectsDir, sanitizeDir(cwd), sessionID+".jsonl")
		if _, err := os.Stat(derived); err == nil {
			return derived
		}
	}

	pattern := filepath.Join(projectsDir, "**", sessionID+".jsonl")
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// sanitizeDir maps a working directory to its projects-dir folder name:
// every byte outside [A-Za-z0-9-] becomes '-'.
func sanitizeDir(path string) string {
	out := []byte(path)
	for i, b := range out {
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == '-':
		default:
			out[i] = '-'
		}
	}
	return string(out)
}
