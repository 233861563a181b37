// Package core implements the coordination server's in-memory state engine:
// the session registry, the per-session response ledger, and the fire-once
// annotation queue. All mutation funnels through one mutex-guarded Registry
// so the invariants (append order, fire-once drain, root reference counting)
// are enforced in a single place. Core operations are total: external
// failures are absorbed where the dependency was invoked and surface as
// "no change", never as a fault to the caller. The one loud failure is a
// missing required identifier.
package core

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/bdmorin/the-no-shop/internal/domain"
	"github.com/bdmorin/the-no-shop/internal/exec"
	"github.com/bdmorin/the-no-shop/internal/gitstatus"
	"github.com/bdmorin/the-no-shop/internal/logging"
	"github.com/bdmorin/the-no-shop/internal/metrics"
	"github.com/bdmorin/the-no-shop/internal/transcript"
)

// ErrMissingSessionID rejects inbound notifications without a session id.
var ErrMissingSessionID = errors.New("session id is required")

// Broadcaster delivers events to every connected observer, best-effort.
type Broadcaster interface {
	Broadcast(domain.Event)
}

// Options configures the registry's collaborators.
type Options struct {
	// ProjectsDir holds per-session transcript logs for path derivation.
	ProjectsDir string

	// Runner executes git subprocesses. Defaults to the OS runner.
	Runner exec.Runner

	StatsTTL          time.Duration
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	ExecTimeout       time.Duration
}

func (o *Options) fillDefaults() {
	if o.Runner == nil {
		o.Runner = exec.NewOSRunner()
	}
	if o.StatsTTL <= 0 {
		o.StatsTTL = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 8 * time.Second
	}
	if o.ExecTimeout <= 0 {
		o.ExecTimeout = 5 * time.Second
	}
}

// Registry owns all volatile server state. Nothing outside this package
// mutates the session, ledger, or annotation tables directly.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*domain.Session
	responses   map[string][]domain.ResponseEntry
	annotations map[string][]domain.Annotation

	// lastStats remembers the transcript stats last applied per session so
	// the heartbeat only broadcasts when a derived value actually changed.
	lastStats map[string]domain.TranscriptStats

	stats    *transcript.Cache
	resolver *gitstatus.Resolver
	poller   *gitstatus.Poller
	hub      Broadcaster
	opts     Options
	log      *logging.Logger
	now      func() time.Time
}

// New creates a registry wired to the given broadcaster.
func New(hub Broadcaster, opts Options) *Registry {
	opts.fillDefaults()

	r := &Registry{
		sessions:    make(map[string]*domain.Session),
		responses:   make(map[string][]domain.ResponseEntry),
		annotations: make(map[string][]domain.Annotation),
		lastStats:   make(map[string]domain.TranscriptStats),
		stats:       transcript.NewCache(opts.StatsTTL),
		resolver:    gitstatus.NewResolver(opts.Runner, opts.ExecTimeout),
		hub:         hub,
		opts:        opts,
		log:         logging.New("core"),
		now:         time.Now,
	}

	fetcher := gitstatus.NewFetcher(opts.Runner, opts.ExecTimeout)
	r.poller = gitstatus.NewPoller(fetcher.Fetch, opts.PollInterval, r.applyRepoStatus)

	return r
}

// RegisterSession creates or replaces the record for id. Counters are zeroed;
// a resumed session with a known transcript is seeded synchronously from
// prior history before the record becomes visible. The owning repository
// root is resolved, any cached status attached, and polling ensured.
func (r *Registry) RegisterSession(id, cwd, model, permissionMode, source, logPath string) (*domain.Session, error) {
	if id == "" {
		return nil, ErrMissingSessionID
	}

	if logPath == "" {
		logPath = transcript.LocatePath(r.opts.ProjectsDir, cwd, id)
	}
	root := r.resolver.Resolve(cwd)
	remote := r.resolver.Remote(root)

	var seeded *domain.TranscriptStats
	if source == domain.SourceResume && logPath != "" {
		st := r.stats.Refresh(id, logPath)
		seeded = &st
	}

	now := r.now()
	sess := &domain.Session{
		ID:             id,
		Directory:      cwd,
		Model:          model,
		PermissionMode: permissionMode,
		Source:         source,
		StartedAt:      now,
		LastActivity:   now,
		RepoRoot:       root,
		Remote:         remote.URL,
		RepoSlug:       remote.Slug,
		TranscriptPath: logPath,
	}

	r.mu.Lock()
	old := r.sessions[id]
	oldRoot := ""
	if old != nil && !old.Ended {
		oldRoot = old.RepoRoot
	}
	if seeded != nil {
		applyStats(sess, *seeded)
		r.lastStats[id] = *seeded
	} else {
		delete(r.lastStats, id)
	}
	if cached := r.poller.Cached(root); cached != nil {
		sess.RepoStatus = cached
	}
	r.sessions[id] = sess
	out := copySession(sess)
	r.mu.Unlock()

	metrics.Global().SessionsStarted.Add(1)
	r.emit(domain.Event{Type: domain.EventSessionStarted, SessionID: id, Session: out})

	// Acquire fans out the seeded status for a fresh root; for an already
	// active root it only bumps the reference count.
	if root != "" {
		if st := r.poller.Acquire(root); st != nil {
			r.mu.Lock()
			if cur := r.sessions[id]; cur != nil && cur.RepoStatus == nil {
				cur.RepoStatus = st
			}
			r.mu.Unlock()
		}
	}
	if oldRoot != "" {
		r.poller.Release(oldRoot)
	}

	r.log.WithSession(id).Info("session_registered", map[string]interface{}{
		"source": source,
		"root":   root,
	})

	return out, nil
}

// EndSession reconciles the session's counters with a final transcript
// re-scan, broadcasts the end event, and drops the session's reference on
// its repository root. The record itself is retained.
func (r *Registry) EndSession(id, reason, logPath string) error {
	if id == "" {
		return ErrMissingSessionID
	}

	r.mu.Lock()
	sess := r.sessions[id]
	if sess == nil {
		r.mu.Unlock()
		return nil
	}
	if logPath != "" {
		sess.TranscriptPath = logPath
	}
	path := sess.TranscriptPath
	r.mu.Unlock()

	var st domain.TranscriptStats
	scanned := false
	if path != "" {
		st = r.stats.Refresh(id, path)
		scanned = true
	}

	r.mu.Lock()
	if r.sessions[id] != sess {
		// A re-registration for the same id landed during the re-scan.
		// The new record owns the root reference now; this notification
		// refers to the replaced incarnation and applies to nothing.
		r.mu.Unlock()
		return nil
	}
	if scanned {
		applyStats(sess, st)
		r.lastStats[id] = st
	}
	wasEnded := sess.Ended
	root := sess.RepoRoot
	sess.Ended = true
	sess.LastActivity = r.now()
	out := copySession(sess)
	r.mu.Unlock()

	metrics.Global().SessionsEnded.Add(1)
	r.emit(domain.Event{Type: domain.EventSessionEnded, SessionID: id, Reason: reason, Session: out})

	if !wasEnded && root != "" {
		r.poller.Release(root)
	}

	r.log.WithSession(id).Info("session_ended", map[string]interface{}{"reason": reason})
	return nil
}

// ListSessions returns all session records ordered by most-recent activity.
func (r *Registry) ListSessions() []*domain.Session {
	r.mu.Lock()
	out := make([]*domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, copySession(s))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// AppendResponse records one captured block of agent output. Empty content
// is a no-op that signals nothing. The owning session's turn counter and
// activity timestamp advance when the session is known; the ledger accepts
// appends for sessions the registry has never seen.
func (r *Registry) AppendResponse(sessionID, role, content string) (*domain.ResponseEntry, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	if content == "" {
		return nil, nil
	}

	entry := domain.ResponseEntry{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Timestamp: r.now(),
		Role:      role,
		Content:   content,
	}

	r.mu.Lock()
	r.responses[sessionID] = append(r.responses[sessionID], entry)
	if sess := r.sessions[sessionID]; sess != nil {
		sess.Turns++
		sess.LastActivity = entry.Timestamp
	}
	r.mu.Unlock()

	metrics.Global().ResponsesAppended.Add(1)
	r.emit(domain.Event{Type: domain.EventNewResponse, SessionID: sessionID, Response: &entry})
	return &entry, nil
}

// ListResponses returns one session's entries in append order, or, for an
// empty session id, every session's entries sorted by capture timestamp.
// Unknown sessions yield an empty slice.
func (r *Registry) ListResponses(sessionID string) []domain.ResponseEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != "" {
		return append([]domain.ResponseEntry{}, r.responses[sessionID]...)
	}

	all := []domain.ResponseEntry{}
	for _, entries := range r.responses {
		all = append(all, entries...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all
}

// AddAnnotation appends a pending annotation to the session's queue. The
// response id is deliberately not validated: annotations may reference
// evicted or cross-session text.
func (r *Registry) AddAnnotation(sessionID, responseID, selectedText, comment string) (*domain.Annotation, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}

	ann := domain.Annotation{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		ResponseID:   responseID,
		SelectedText: selectedText,
		Comment:      comment,
		CreatedAt:    r.now(),
	}

	r.mu.Lock()
	r.annotations[sessionID] = append(r.annotations[sessionID], ann)
	if sess := r.sessions[sessionID]; sess != nil {
		sess.LastActivity = ann.CreatedAt
	}
	r.mu.Unlock()

	metrics.Global().AnnotationsAdded.Add(1)
	r.emit(domain.Event{Type: domain.EventAnnotationAdded, SessionID: sessionID, Annotation: &ann})
	return &ann, nil
}

// DrainAnnotations atomically retrieves and empties the session's pending
// queue. This is the fire-once contract: a second drain with no intervening
// add returns empty. An append racing with a drain is never lost; it lands
// in the queue for the next drain.
func (r *Registry) DrainAnnotations(sessionID string) []domain.Annotation {
	r.mu.Lock()
	drained := r.annotations[sessionID]
	delete(r.annotations, sessionID)
	if sess := r.sessions[sessionID]; sess != nil {
		sess.LastActivity = r.now()
	}
	r.mu.Unlock()

	if drained == nil {
		drained = []domain.Annotation{}
	}
	metrics.Global().AnnotationsDrained.Add(int64(len(drained)))
	return drained
}

// DeleteAnnotation removes the first annotation matching id across all
// sessions' queues. Silently succeeds when no match exists.
func (r *Registry) DeleteAnnotation(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, queue := range r.annotations {
		for i, ann := range queue {
			if ann.ID == id {
				r.annotations[sessionID] = append(queue[:i:i], queue[i+1:]...)
				return
			}
		}
	}
}

// Snapshot assembles the complete current state from the live tables. It is
// never cached: a late-joining observer sees exactly what an always-connected
// one would have reconstructed.
func (r *Registry) Snapshot() *domain.Snapshot {
	r.mu.Lock()

	snap := &domain.Snapshot{
		Sessions:    make([]*domain.Session, 0, len(r.sessions)),
		Responses:   make(map[string][]domain.ResponseEntry, len(r.responses)),
		Annotations: make(map[string][]domain.Annotation, len(r.annotations)),
	}
	for _, s := range r.sessions {
		snap.Sessions = append(snap.Sessions, copySession(s))
	}
	for id, entries := range r.responses {
		snap.Responses[id] = append([]domain.ResponseEntry{}, entries...)
	}
	for id, queue := range r.annotations {
		snap.Annotations[id] = append([]domain.Annotation{}, queue...)
	}
	r.mu.Unlock()

	sort.Slice(snap.Sessions, func(i, j int) bool {
		return snap.Sessions[i].LastActivity.After(snap.Sessions[j].LastActivity)
	})
	return snap
}

// SessionCount reports the number of known sessions, for the liveness probe.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// applyRepoStatus is the poller's change callback: it updates every live
// session resolved to root and broadcasts one status event per affected
// session.
func (r *Registry) applyRepoStatus(root string, status domain.RepoStatus) {
	var events []domain.Event

	r.mu.Lock()
	for _, sess := range r.sessions {
		if sess.RepoRoot != root || sess.Ended {
			continue
		}
		cp := status
		sess.RepoStatus = &cp
		events = append(events, domain.Event{
			Type:       domain.EventRepoStatusChanged,
			SessionID:  sess.ID,
			RepoStatus: &cp,
		})
	}
	r.mu.Unlock()

	for _, ev := range events {
		r.emit(ev)
	}
}

// applyStats overwrites a session's derived counters from a transcript scan.
// Caller holds the registry lock.
func applyStats(sess *domain.Session, st domain.TranscriptStats) {
	sess.TokensIn = st.TokensIn
	sess.TokensOut = st.TokensOut
	sess.Turns = st.Turns
	if st.Model != "" {
		sess.Model = st.Model
	}
	if st.Version != "" {
		sess.Version = st.Version
	}
	if st.Branch != "" {
		sess.Branch = st.Branch
	}
}

func copySession(s *domain.Session) *domain.Session {
	cp := *s
	if s.RepoStatus != nil {
		st := *s.RepoStatus
		cp.RepoStatus = &st
	}
	return &cp
}

func (r *Registry) emit(ev domain.Event) {
	if r.hub != nil {
		r.hub.Broadcast(ev)
	}
}
