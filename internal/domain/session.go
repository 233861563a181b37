// Package domain defines the entities shared across the coordination server:
// sessions, captured responses, annotations, repository status snapshots, and
// the typed events fanned out to connected dashboards.
package domain

import (
	"time"
)

// Session represents one conversation between a human and an agent process.
// Records are created on session start, mutated by ledger appends, transcript
// re-scans, and repository polling, and retained (never deleted) after the
// session ends.
type Session struct {
	ID             string    `json:"id"`
	Directory      string    `json:"directory"`
	Model          string    `json:"model,omitempty"`
	PermissionMode string    `json:"permissionMode,omitempty"`
	Source         string    `json:"source,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	LastActivity   time.Time `json:"lastActivity"`

	TokensIn  int `json:"tokensIn"`
	TokensOut int `json:"tokensOut"`
	Turns     int `json:"turns"`

	// Version is the agent tool version observed in the transcript.
	Version string `json:"version,omitempty"`
	Branch  string `json:"branch,omitempty"`

	// RepoRoot is the resolved top of the version-controlled tree containing
	// Directory, empty when the directory is not inside a repository.
	RepoRoot   string      `json:"repoRoot,omitempty"`
	Remote     string      `json:"remote,omitempty"`
	RepoSlug   string      `json:"repoSlug,omitempty"`
	RepoStatus *RepoStatus `json:"repoStatus,omitempty"`

	// TranscriptPath is the externally maintained append-only JSONL log for
	// this session, when known.
	TranscriptPath string `json:"transcriptPath,omitempty"`

	Ended bool `json:"ended,omitempty"`
}

// SourceResume marks a session-start notification for a resumed conversation.
// Resumed sessions have their counters seeded from the existing transcript
// before the record becomes visible.
const SourceResume = "resume"
