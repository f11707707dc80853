package domain

import (
	"net/url"
	"sync"
)

// Resource is the process-wide identity for a single (location,
// version) pair. Every Tracker that adds the same location and
// version shares the same *Resource, interned below, the way the
// engine shares one entity across every caller interested in the same
// remote content.
type Resource struct {
	key      string
	location *url.URL
	version  Version
	options  DownloadOptions

	// monitor guards every field below. Acquired after
	// Tracker.resources_lock and before nothing else in the lock
	// hierarchy except the listener snapshot, which is always taken
	// with no lock held.
	monitor sync.Mutex

	state State

	updatePolicy     UpdatePolicy
	revalidatedOnce  bool
	downloadLocation *url.URL
	localFile        string
	contentEncoding  string
	size             int64 // -1 if unknown
	transferred      int64
	lastErr          error

	trackers map[uintptr]int // interned tracker-id -> refcount contribution
}

// newResource constructs a fresh, uninitialized Resource. Callers
// outside this package obtain instances only through Intern.
func newResource(location *url.URL, version Version, opts DownloadOptions, policy UpdatePolicy) *Resource {
	return &Resource{
		key:          identityKey(location, version),
		location:     location,
		version:      version,
		options:      opts,
		updatePolicy: policy,
		size:         -1,
		trackers:     make(map[uintptr]int),
	}
}

// Key returns the interning-table identity key for this resource.
func (r *Resource) Key() string { return r.key }

// Location returns the normalized remote location this resource was
// interned under.
func (r *Resource) Location() *url.URL { return r.location }

// Version returns the requested version identity.
func (r *Resource) Version() Version { return r.version }

// Options returns the download options this resource was interned
// with.
func (r *Resource) Options() DownloadOptions { return r.options }

// State returns a snapshot of the current flag set.
func (r *Resource) State() State {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	return r.state
}

// TryTransition is the single primitive every phase uses to move a
// resource through its lifecycle: it succeeds, atomically, only if
// every bit in required is currently set, then clears every bit in
// toRemove and sets every bit in toAdd. Phases express their legal
// transitions as a short table of (required, toAdd, toRemove) calls
// instead of hand-rolled if/else chains over individual flags.
func (r *Resource) TryTransition(required, toAdd, toRemove State) bool {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	if !r.state.Has(required) {
		return false
	}
	r.state = (r.state &^ toRemove) | toAdd
	return true
}

// Snapshot is a read-only view of a Resource's attributes, the shape
// handed to listeners and status queries so callers never hold
// monitor while doing unrelated work.
type Snapshot struct {
	Key              string
	Location         *url.URL
	Version          Version
	State            State
	DownloadLocation *url.URL
	LocalFile        string
	ContentEncoding  string
	Size             int64
	Transferred      int64
	Err              error
}

// Snap takes a consistent snapshot of the resource under monitor.
func (r *Resource) Snap() Snapshot {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	return Snapshot{
		Key:              r.key,
		Location:         r.location,
		Version:          r.version,
		State:            r.state,
		DownloadLocation: r.downloadLocation,
		LocalFile:        r.localFile,
		ContentEncoding:  r.contentEncoding,
		Size:             r.size,
		Transferred:      r.transferred,
		Err:              r.lastErr,
	}
}

// SetConnectResult records the outcome of the connect phase: the
// concrete URL that answered (possibly different from Location after
// redirects), its content encoding, and its advertised size, or -1 if
// unknown.
func (r *Resource) SetConnectResult(downloadLocation *url.URL, contentEncoding string, size int64) {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	r.downloadLocation = downloadLocation
	r.contentEncoding = contentEncoding
	r.size = size
}

// SetError records a terminal failure and marks revalidatedOnce so a
// SESSION-policy resource does not retry the connect phase again this
// process lifetime.
func (r *Resource) SetError(err error) {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	r.lastErr = err
	r.revalidatedOnce = true
}

// AddTransferred accumulates download progress.
func (r *Resource) AddTransferred(n int64) {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	r.transferred += n
}

// SetLocalFile records where the cache placed the finished content.
func (r *Resource) SetLocalFile(path string) {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	r.localFile = path
}

// MarkRevalidated records that the connect phase has run at least
// once this process lifetime, the fact PolicySession consults.
func (r *Resource) MarkRevalidated() {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	r.revalidatedOnce = true
}

// RevalidatedOnce reports whether the connect phase has already run
// this process lifetime.
func (r *Resource) RevalidatedOnce() bool {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	return r.revalidatedOnce
}

// UpdatePolicy returns the policy this resource was interned with.
func (r *Resource) UpdatePolicy() UpdatePolicy {
	r.monitor.Lock()
	defer r.monitor.Unlock()
	return r.updatePolicy
}

// Registry is the process-wide interning table keyed by identity, the
// generalization of the engine's weak-reference resource cache: every
// Tracker.AddResource call for an equivalent (location, version)
// shares the same *Resource, and the entry is dropped once the last
// attached Tracker detaches from a terminal resource.
type Registry struct {
	mu    sync.Mutex
	byKey map[string]*Resource
}

// NewRegistry constructs an empty interning table.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Resource)}
}

// Intern returns the shared Resource for (location, version),
// creating it on first reference, and records trackerID as one of its
// attached owners. trackerID is a stable per-Tracker identity chosen
// by the caller (the Tracker's own pointer, cast to uintptr).
func (reg *Registry) Intern(location *url.URL, version Version, opts DownloadOptions, policy UpdatePolicy, trackerID uintptr) *Resource {
	key := identityKey(location, version)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.byKey[key]
	if !ok {
		r = newResource(location, version, opts, policy)
		reg.byKey[key] = r
	}
	r.trackers[trackerID]++
	return r
}

// Detach removes trackerID's reference to the resource identified by
// key. If no references remain and the resource has reached a
// terminal state, the entry is dropped from the table — the
// generalization of letting a weak reference expire once nothing
// holds the resource live.
func (reg *Registry) Detach(key string, trackerID uintptr) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.byKey[key]
	if !ok {
		return
	}
	r.trackers[trackerID]--
	if r.trackers[trackerID] <= 0 {
		delete(r.trackers, trackerID)
	}
	if len(r.trackers) == 0 && r.State().IsTerminal() {
		delete(reg.byKey, key)
	}
}

// TrackersFor returns the ids of every Tracker currently attached to
// the resource identified by key, the fan-out list a state-change
// notification dispatches to.
func (reg *Registry) TrackersFor(key string) []uintptr {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.byKey[key]
	if !ok {
		return nil
	}
	ids := make([]uintptr, 0, len(r.trackers))
	for id := range r.trackers {
		ids = append(ids, id)
	}
	return ids
}

// Lookup returns the interned resource for key, if any is still live.
func (reg *Registry) Lookup(key string) (*Resource, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.byKey[key]
	return r, ok
}

// Len reports how many resources are currently interned, for tests
// and diagnostics.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.byKey)
}
