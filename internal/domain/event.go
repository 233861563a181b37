package domain

// EventType is the discriminant tag on events delivered to observers.
type EventType string

const (
	EventFullState         EventType = "full_state"
	EventSessionStarted    EventType = "session_started"
	EventSessionEnded      EventType = "session_ended"
	EventNewResponse       EventType = "new_response"
	EventAnnotationAdded   EventType = "annotation_added"
	EventRepoStatusChanged EventType = "repo_status_changed"
	EventStatsChanged      EventType = "stats_changed"
)

// Event is a typed notification fanned out to every connected observer.
// Payload fields are set according to the event type.
type Event struct {
	Type       EventType      `json:"type"`
	SessionID  string         `json:"sessionId,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Session    *Session       `json:"session,omitempty"`
	Response   *ResponseEntry `json:"response,omitempty"`
	Annotation *Annotation    `json:"annotation,omitempty"`
	RepoStatus *RepoStatus    `json:"repoStatus,omitempty"`
	Snapshot   *Snapshot      `json:"snapshot,omitempty"`
}

// Snapshot is the complete server state at one instant: every session record,
// every per-session response ledger, and every pending annotation queue. It is
// assembled from the live tables on demand so a late-joining observer
// reconstructs the same state as one connected from the start.
type Snapshot struct {
	Sessions    []*Session                 `json:"sessions"`
	Responses   map[string][]ResponseEntry `json:"responses"`
	Annotations map[string][]Annotation    `json:"annotations"`
}
