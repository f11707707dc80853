// Package tracker implements the per-client facade: add_resource,
// wait_for, get_cache_file, and the listener registry a caller
// interacts with, generalized from one attachment point shared by a
// process-wide interned Resource.
package tracker

import (
	"context"
	"net/url"
	"sync"
	"time"
	"unsafe"

	"github.com/corvusflow/rescache/internal/cache"
	"github.com/corvusflow/rescache/internal/domain"
	"github.com/corvusflow/rescache/internal/scheduler"
)

// entry is one (identity key -> Resource) attachment this Tracker
// owns, recorded so add_resource is idempotent and remove_resource
// can detach without affecting other Trackers sharing the Resource.
type entry struct {
	key      string
	resource *domain.Resource
}

// Tracker is a per-client handle onto the shared Resource registry.
type Tracker struct {
	registry  *domain.Registry
	scheduler *scheduler.Scheduler
	store     *cache.Store
	prefetch  bool

	resourcesMu sync.Mutex
	resources   map[string]*entry

	listenersMu sync.Mutex
	listeners   []domain.DownloadListener
}

// New constructs a Tracker attached to the shared registry and
// scheduler. If prefetch is true, this Tracker contributes background
// work to the scheduler's prefetch registry.
func New(registry *domain.Registry, sched *scheduler.Scheduler, store *cache.Store, prefetch bool) *Tracker {
	t := &Tracker{
		registry:  registry,
		scheduler: sched,
		store:     store,
		prefetch:  prefetch,
		resources: make(map[string]*entry),
	}
	if prefetch {
		sched.RegisterPrefetch(t)
	}
	return t
}

// Close detaches this Tracker from every Resource it holds and
// removes it from the scheduler's prefetch registry.
func (t *Tracker) Close() {
	t.scheduler.UnregisterPrefetch(t.ID())

	t.resourcesMu.Lock()
	entries := make([]*entry, 0, len(t.resources))
	for _, e := range t.resources {
		entries = append(entries, e)
	}
	t.resources = make(map[string]*entry)
	t.resourcesMu.Unlock()

	for _, e := range entries {
		t.registry.Detach(e.key, t.ID())
	}
}

// ID returns this Tracker's interned identity, the generalization of
// a weak reference: the scheduler's prefetch registry holds only this
// value and a Live() check, never a strong *Tracker pointer.
func (t *Tracker) ID() uintptr { return uintptr(unsafe.Pointer(t)) }

// AddResource normalizes the URL, interns the Resource, records it in
// this Tracker's own list (idempotently), and runs check_cache.
func (t *Tracker) AddResource(rawURL string, version domain.Version, opts domain.DownloadOptions, policy domain.UpdatePolicy) (*domain.Resource, error) {
	location, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	r := t.registry.Intern(location, version, opts, policy, t.ID())
	key := r.Key()

	t.resourcesMu.Lock()
	_, already := t.resources[key]
	if !already {
		t.resources[key] = &entry{key: key, resource: r}
	}
	t.resourcesMu.Unlock()

	if already {
		return r, nil
	}

	t.checkCache(r)
	return r, nil
}

// checkCache implements the add_resource decision table: an
// uncacheable resource is marked terminal with no network, a FORCE
// policy clears state for an unconditional refetch, and anything else
// either trusts the cache outright or defers to the connect phase.
func (t *Tracker) checkCache(r *domain.Resource) {
	if !t.store.IsCacheable(r.Location()) {
		r.TryTransition(0, domain.Downloaded|domain.Connected|domain.Processing, 0)
		t.fireAndBroadcast(r)
		return
	}

	if r.UpdatePolicy() == domain.PolicyForce {
		r.TryTransition(0, domain.PreConnect, 0)
		t.enqueueOrPrefetch(r)
		return
	}

	if r.UpdatePolicy().PermitsCachedUseWithoutConnect(r.RevalidatedOnce()) {
		path := t.store.CacheFileFor(r.Location(), r.Version(), "")
		if entry, err := cache.EntryFor(path); err == nil && !entry.DeleteFlag && entry.LastModified != "" {
			r.SetLocalFile(path)
			r.TryTransition(0, domain.Downloaded|domain.Connected|domain.Processing, 0)
			t.fireAndBroadcast(r)
			return
		}
	}

	r.TryTransition(0, domain.PreConnect, 0)
	t.enqueueOrPrefetch(r)
}

func (t *Tracker) enqueueOrPrefetch(r *domain.Resource) {
	t.scheduler.Enqueue(r)
}

func (t *Tracker) fireAndBroadcast(r *domain.Resource) {
	t.scheduler.Broadcast()
	t.Dispatch(r)
}

// RemoveResource detaches the Resource named by rawURL from this
// Tracker; the Resource stays interned for any other attached
// Tracker.
func (t *Tracker) RemoveResource(rawURL string, version domain.Version) error {
	location, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return err
	}

	t.resourcesMu.Lock()
	var key string
	for k, e := range t.resources {
		if domain.URLEquals(e.resource.Location(), location) && e.resource.Version().Equal(version) {
			key = k
			break
		}
	}
	if key != "" {
		delete(t.resources, key)
	}
	t.resourcesMu.Unlock()

	if key == "" {
		return domain.ErrInvalidDescriptor
	}
	t.registry.Detach(key, t.ID())
	return nil
}

// WaitFor blocks until every named resource reaches DOWNLOADED or
// ERROR, or timeout elapses (0 = no timeout). It returns false only
// on a plain timeout; ctx cancellation surfaces as ErrCancelled.
func (t *Tracker) WaitFor(ctx context.Context, rawURLs []string, timeout time.Duration) (bool, error) {
	resources := make([]*domain.Resource, 0, len(rawURLs))
	for _, raw := range rawURLs {
		t.resourcesMu.Lock()
		var found *domain.Resource
		for _, e := range t.resources {
			if domain.URLEquals(e.resource.Location(), mustNormalize(raw)) {
				found = e.resource
				break
			}
		}
		t.resourcesMu.Unlock()
		if found == nil {
			return false, domain.ErrInvalidDescriptor
		}
		resources = append(resources, found)
	}

	done := make(chan struct{})
	go func() {
		for {
			if allTerminal(resources) {
				close(done)
				return
			}
			t.scheduler.Wait()
		}
	}()

	if timeout <= 0 {
		select {
		case <-done:
			return true, nil
		case <-ctx.Done():
			return false, domain.ErrCancelled
		}
	}

	select {
	case <-done:
		return true, nil
	case <-ctx.Done():
		return false, domain.ErrCancelled
	case <-time.After(timeout):
		return false, nil
	}
}

func allTerminal(resources []*domain.Resource) bool {
	for _, r := range resources {
		if !r.State().IsTerminal() {
			return false
		}
	}
	return true
}

func mustNormalize(raw string) *url.URL {
	u, err := domain.NormalizeURL(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}

// GetCacheFile blocks until the named resource is terminal and
// returns the local path if DOWNLOADED, the raw path for an
// uncacheable file:// URL, or "" (no file) otherwise.
func (t *Tracker) GetCacheFile(ctx context.Context, rawURL string) (string, error) {
	r, err := t.lookup(rawURL)
	if err != nil {
		return "", err
	}
	for !r.State().IsTerminal() {
		t.scheduler.Wait()
	}
	snap := r.Snap()
	if snap.State.Has(domain.Downloaded) {
		if snap.LocalFile != "" {
			return snap.LocalFile, nil
		}
		if snap.Location.Scheme == "file" {
			return snap.Location.Path, nil
		}
	}
	return "", nil
}

// GetCacheURL wraps GetCacheFile as a file:// URL.
func (t *Tracker) GetCacheURL(ctx context.Context, rawURL string) (*url.URL, error) {
	path, err := t.GetCacheFile(ctx, rawURL)
	if err != nil || path == "" {
		return nil, err
	}
	return &url.URL{Scheme: "file", Path: path}, nil
}

// AmountRead returns the resource's current transferred counter.
func (t *Tracker) AmountRead(rawURL string) (int64, error) {
	r, err := t.lookup(rawURL)
	if err != nil {
		return 0, err
	}
	return r.Snap().Transferred, nil
}

// TotalSize returns the resource's advertised size, or -1 if unknown.
func (t *Tracker) TotalSize(rawURL string) (int64, error) {
	r, err := t.lookup(rawURL)
	if err != nil {
		return 0, err
	}
	return r.Snap().Size, nil
}

func (t *Tracker) lookup(rawURL string) (*domain.Resource, error) {
	location, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	t.resourcesMu.Lock()
	defer t.resourcesMu.Unlock()
	for _, e := range t.resources {
		if domain.URLEquals(e.resource.Location(), location) {
			return e.resource, nil
		}
	}
	return nil, domain.ErrInvalidDescriptor
}

// AddDownloadListener registers a listener with this Tracker only.
func (t *Tracker) AddDownloadListener(l domain.DownloadListener) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	t.listeners = append(t.listeners, l)
}

// RemoveDownloadListener removes a previously registered listener.
func (t *Tracker) RemoveDownloadListener(l domain.DownloadListener) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	for i, existing := range t.listeners {
		if existing == l {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

// Dispatch snapshots the listener list under listeners_lock, releases
// it, then invokes callbacks with no locks held at all — the
// mandatory discipline that avoids reentrant deadlock when a listener
// calls back into this Tracker.
func (t *Tracker) Dispatch(r *domain.Resource) {
	t.listenersMu.Lock()
	snapshot := make([]domain.DownloadListener, len(t.listeners))
	copy(snapshot, t.listeners)
	t.listenersMu.Unlock()

	snap := r.Snap()
	event := domain.Event{
		Kind:      domain.ClassifyEvent(snap.State),
		Location:  snap.Location.String(),
		ReadSoFar: snap.Transferred,
		Total:     snap.Size,
		State:     snap.State,
	}
	for _, l := range snapshot {
		l.OnDownloadEvent(event)
	}
}

// Live reports whether this Tracker is still a valid prefetch source.
// A real weak-reference platform would report false once the Tracker
// itself is unreachable; here it always reports true, since Go's GC
// does not expose reachability. Close takes the Tracker out of the
// prefetch registry instead.
func (t *Tracker) Live() bool { return true }

// NextUninitialized returns the first attached resource with no state
// flags set yet, the candidate for a speculative connect.
func (t *Tracker) NextUninitialized() (*domain.Resource, bool) {
	t.resourcesMu.Lock()
	defer t.resourcesMu.Unlock()
	for _, e := range t.resources {
		if !e.resource.State().Initialized() {
			return e.resource, true
		}
	}
	return nil, false
}

// NextConnected returns the first attached resource that is CONNECTED
// and not otherwise terminal or mid-flight, the candidate for a
// speculative download.
func (t *Tracker) NextConnected() (*domain.Resource, bool) {
	t.resourcesMu.Lock()
	defer t.resourcesMu.Unlock()
	for _, e := range t.resources {
		s := e.resource.State()
		if s.Has(domain.Connected) && !s.HasAny(domain.Error|domain.Downloaded|domain.Downloading|domain.PreDownload) {
			return e.resource, true
		}
	}
	return nil, false
}
