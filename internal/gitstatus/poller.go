package gitstatus

import (
	"context"
	"sync"
	"time"

	"github.com/bdmorin/the-no-shop/internal/domain"
	"github.com/bdmorin/the-no-shop/internal/logging"
	"github.com/bdmorin/the-no-shop/internal/metrics"
)

// ChangeFunc receives the new status whenever a root's snapshot changes.
type ChangeFunc func(root string, status domain.RepoStatus)

// FetchFunc produces the current status snapshot for a root.
type FetchFunc func(root string) (domain.RepoStatus, error)

type rootState struct {
	refs   int
	status domain.RepoStatus
	seeded bool
	cancel context.CancelFunc
}

// Poller maintains one polling loop per distinct repository root. Roots are
// reference counted: the first session under a root activates polling with an
// immediate synchronous seed fetch, and the loop stops (and the cached status
// is evicted) when the last referencing session ends. Status updates for a
// root are applied in fetch order; a fetch that differs structurally from the
// cached snapshot invokes the change callback, identical fetches are dropped.
type Poller struct {
	mu       sync.Mutex
	fetch    FetchFunc
	interval time.Duration
	onChange ChangeFunc
	roots    map[string]*rootState
	log      *logging.Logger
}

// NewPoller creates a poller. onChange runs on the polling goroutine (or the
// caller's goroutine for the seed fetch) and must not call back into Acquire
// or Release.
func NewPoller(fetch FetchFunc, interval time.Duration, onChange ChangeFunc) *Poller {
	return &Poller{
		fetch:    fetch,
		interval: interval,
		onChange: onChange,
		roots:    make(map[string]*rootState),
		log:      logging.New("gitstatus"),
	}
}

// Acquire registers one reference on root, activating polling if it was
// unregistered. Activation performs one synchronous status fetch that seeds
// the cache and fires the change callback. Returns the cached status, nil
// when none is available yet (or root is empty).
func (p *Poller) Acquire(root string) *domain.RepoStatus {
	if root == "" {
		return nil
	}

	p.mu.Lock()
	if st, ok := p.roots[root]; ok {
		st.refs++
		cached := cachedCopy(st)
		p.mu.Unlock()
		return cached
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &rootState{refs: 1, cancel: cancel}
	p.roots[root] = st
	p.mu.Unlock()

	status, err := p.fetch(root)
	metrics.Global().RecordStatusPoll(err == nil)
	if err != nil {
		p.log.WithRoot(root).Warn("seed_fetch_failed", nil, err)
	} else {
		p.mu.Lock()
		st.status = status
		st.seeded = true
		p.mu.Unlock()
		p.onChange(root, status)
	}

	go p.run(ctx, root)

	p.mu.Lock()
	cached := cachedCopy(st)
	p.mu.Unlock()
	return cached
}

// Release drops one reference on root. When the count reaches zero the
// polling loop is cancelled and the cached status evicted.
func (p *Poller) Release(root string) {
	if root == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.roots[root]
	if !ok {
		return
	}
	st.refs--
	if st.refs <= 0 {
		st.cancel()
		delete(p.roots, root)
	}
}

// Cached returns the cached status for root, nil if the root is not active
// or has no seeded snapshot.
func (p *Poller) Cached(root string) *domain.RepoStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.roots[root]
	if !ok {
		return nil
	}
	return cachedCopy(st)
}

// Active reports whether a polling loop exists for root.
func (p *Poller) Active(root string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.roots[root]
	return ok
}

func (p *Poller) run(ctx context.Context, root string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(root)
		}
	}
}

func (p *Poller) poll(root string) {
	status, err := p.fetch(root)
	metrics.Global().RecordStatusPoll(err == nil)
	if err != nil {
		// Soft failure: the next tick is the retry.
		p.log.WithRoot(root).Debug("fetch_skipped", map[string]interface{}{"error": err.Error()})
		return
	}

	p.mu.Lock()
	st, ok := p.roots[root]
	if !ok {
		p.mu.Unlock()
		return
	}
	if st.seeded && st.status == status {
		p.mu.Unlock()
		return
	}
	st.status = status
	st.seeded = true
	p.mu.Unlock()

	p.onChange(root, status)
}

func cachedCopy(st *rootState) *domain.RepoStatus {
	if !st.seeded {
		return nil
	}
	cp := st.status
	return &cp
}
