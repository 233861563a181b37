package domain

import (
	"time"
)

// ResponseEntry is one captured block of agent output. Entries are immutable
// and live in a per-session append-only sequence; insertion order is append
// order.
type ResponseEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
}

// Annotation is a human-authored comment bound to a substring of a prior
// response entry. Annotations sit in a per-session fire-once queue: drained
// once, never re-delivered.
type Annotation struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	ResponseID   string    `json:"responseId"`
	SelectedText string    `json:"selectedText"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RepoStatus is a value snapshot of a repository's version-control state.
// Equality is structural; a change notification is emitted only when a newly
// fetched snapshot differs field-by-field from the cached one.
type RepoStatus struct {
	Branch     string `json:"branch"`
	Ahead      int    `json:"ahead"`
	Behind     int    `json:"behind"`
	Staged     int    `json:"staged"`
	Modified   int    `json:"modified"`
	Untracked  int    `json:"untracked"`
	Conflicted int    `json:"conflicted"`
}

// TranscriptStats holds statistics derived by scanning a session's external
// transcript log. It is derived state, cached alongside the byte length of
// the source observed at scan time.
type TranscriptStats struct {
	TokensIn  int    `json:"tokensIn"`
	TokensOut int    `json:"tokensOut"`
	Turns     int    `json:"turns"`
	ToolCalls int    `json:"toolCalls"`
	Model     string `json:"model,omitempty"`
	Version   string `json:"version,omitempty"`
	Branch    string `json:"branch,omitempty"`
}
