package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/corvusflow/rescache/internal/cache"
	"github.com/corvusflow/rescache/internal/domain"
	"github.com/corvusflow/rescache/internal/downloader"
	"github.com/corvusflow/rescache/internal/infra/config"
	"github.com/corvusflow/rescache/internal/infra/logger"
	"github.com/corvusflow/rescache/internal/netenv"
	"github.com/corvusflow/rescache/internal/prober"
	"github.com/corvusflow/rescache/internal/scheduler"
	"github.com/corvusflow/rescache/internal/tracker"
)

// Context holds the core environment and shared resources for
// rescache. It acts as the single source of truth wiring the engine's
// collaborators together.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Registry  *domain.Registry
	Store     *cache.Store
	Catalog   *cache.Catalog
	Scheduler *scheduler.Scheduler
	Runtime   netenv.Runtime

	trackersMu sync.Mutex
	trackers   map[uintptr]*tracker.Tracker
}

// NewContext wires the full engine from configuration: the interned
// resource registry, the cache store, the GC catalog, the ambient
// runtime, and the process-wide scheduler bound to a Worker that
// executes connect/download phases.
func NewContext(cfg *config.Config, log *logger.Logger) (*Context, error) {
	store, err := cache.NewStore(cfg.Cache.Root)
	if err != nil {
		return nil, err
	}

	catalog, err := cache.OpenCatalog(cfg.Catalog.SQLitePath)
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(cfg.Network.RequestTimeout)
	if err != nil {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	runtime := netenv.NewDefault(cfg.Network.AllowRedirect)
	runtime.ForceOffline(cfg.Network.OfflineForced)

	registry := domain.NewRegistry()
	prb := prober.New(httpClient, runtime)

	c := &Context{
		Config:   cfg,
		Logger:   log,
		Registry: registry,
		Store:    store,
		Catalog:  catalog,
		Runtime:  runtime,
		trackers: make(map[uintptr]*tracker.Tracker),
	}

	worker := &downloader.Worker{
		Store:   store,
		Catalog: catalog,
		Prober:  prb,
		Runtime: runtime,
		Client:  httpClient,
		Notify:  c.notify,
	}

	sched := scheduler.New(cfg.Cache.MaxWorkers, worker.Run)
	worker.Broadcast = sched.Broadcast
	worker.Requeue = sched.Enqueue
	c.Scheduler = sched

	return c, nil
}

// notify is the seam between the downloader's phase milestones and
// listener dispatch: it logs the milestone, then fans out to every
// Tracker currently attached to the resource so each fires its own
// listeners under its own snapshot-then-iterate discipline.
func (c *Context) notify(r *domain.Resource, kind domain.EventKind) {
	snap := r.Snap()
	c.Logger.Resource(snap.Location.String()).Debug("%s (state=%s)", kind, snap.State)

	for _, id := range c.Registry.TrackersFor(r.Key()) {
		c.trackersMu.Lock()
		t := c.trackers[id]
		c.trackersMu.Unlock()
		if t != nil {
			t.Dispatch(r)
		}
	}
}

// NewTracker constructs a Tracker attached to this Context's shared
// registry, scheduler, and cache store, and registers it for
// state-change dispatch.
func (c *Context) NewTracker(prefetch bool) *tracker.Tracker {
	t := tracker.New(c.Registry, c.Scheduler, c.Store, prefetch)
	c.trackersMu.Lock()
	c.trackers[t.ID()] = t
	c.trackersMu.Unlock()
	return t
}

// CloseTracker detaches t from every resource it holds and removes it
// from this Context's dispatch registry.
func (c *Context) CloseTracker(t *tracker.Tracker) {
	c.trackersMu.Lock()
	delete(c.trackers, t.ID())
	c.trackersMu.Unlock()
	t.Close()
}

// Close releases the catalog database handle.
func (c *Context) Close() error {
	return c.Catalog.Close()
}
