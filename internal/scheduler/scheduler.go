// Package scheduler is the process-wide singleton that owns the
// demand queue, the prefetch registry, and the completion condition.
// Its lock hierarchy is the outermost in the engine: scheduler_lock,
// then prefetch_lock, then Tracker and Resource locks. selectNext and
// pickPrefetch read Resource state and call Tracker methods while
// holding its own locks, never the other way round.
package scheduler

import (
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/corvusflow/rescache/internal/domain"
)

// PrefetchSource is the generalization of a weakly-held Tracker: the
// scheduler holds only an interned id and a liveness check, never a
// strong reference, so a Tracker that has gone out of scope is simply
// reported dead and lazily swept on the next pick_prefetch pass.
type PrefetchSource interface {
	ID() uintptr
	Live() bool
	NextUninitialized() (*domain.Resource, bool)
	NextConnected() (*domain.Resource, bool)
}

// Scheduler is the process-wide work queue and prefetch registry.
type Scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	demand []*domain.Resource

	prefetchMu sync.Mutex
	prefetch   map[uintptr]PrefetchSource

	sem        *semaphore.Weighted
	maxWorkers int64

	dispatch func(*domain.Resource)

	workersMu    sync.Mutex
	workersAlive int64
}

// New constructs a Scheduler bounding concurrent download workers to
// maxWorkers, dispatching each selected resource to run.
func New(maxWorkers int64, run func(*domain.Resource)) *Scheduler {
	s := &Scheduler{
		prefetch:   make(map[uintptr]PrefetchSource),
		sem:        semaphore.NewWeighted(maxWorkers),
		maxWorkers: maxWorkers,
		dispatch:   run,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// RegisterPrefetch adds a prefetch-enabled source to the weak
// registry.
func (s *Scheduler) RegisterPrefetch(src PrefetchSource) {
	s.prefetchMu.Lock()
	defer s.prefetchMu.Unlock()
	s.prefetch[src.ID()] = src
}

// UnregisterPrefetch removes a source, used when a Tracker is closed
// explicitly rather than left to be swept lazily.
func (s *Scheduler) UnregisterPrefetch(id uintptr) {
	s.prefetchMu.Lock()
	defer s.prefetchMu.Unlock()
	delete(s.prefetch, id)
}

// Enqueue appends resource to the demand queue. resource must already
// be in PRECONNECT or PREDOWNLOAD; Enqueue does not itself transition
// state. A worker is spawned to service the queue if the pool has
// spare capacity.
func (s *Scheduler) Enqueue(resource *domain.Resource) {
	s.mu.Lock()
	s.demand = append(s.demand, resource)
	s.mu.Unlock()
	s.spawnWorker()
}

// Broadcast wakes every waiter blocked in Wait, called after any
// resource reaches a terminal state.
func (s *Scheduler) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cond.Broadcast()
}

// Wait blocks the calling goroutine on the completion condition until
// Broadcast is called. Callers re-check their own termination
// condition in a loop; Wait does not interpret it.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cond.Wait()
}

// selectNext implements the decision table in order: demand
// PRECONNECT, then demand PREDOWNLOAD, then prefetch. It holds
// scheduler_lock for its entire body, including the prefetch scan,
// which is safe because prefetch_lock is strictly lower rank.
func (s *Scheduler) selectNext() *domain.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.demand {
		if r.State().Has(domain.PreConnect) && !r.State().HasAny(domain.Error) {
			s.demand = append(s.demand[:i], s.demand[i+1:]...)
			r.TryTransition(domain.PreConnect, domain.Connecting, domain.PreConnect)
			return r
		}
	}
	for i, r := range s.demand {
		if r.State().Has(domain.PreDownload) && !r.State().HasAny(domain.Error|domain.PreConnect|domain.Connecting) {
			s.demand = append(s.demand[:i], s.demand[i+1:]...)
			r.TryTransition(domain.PreDownload, domain.Downloading, domain.PreDownload)
			return r
		}
	}
	return s.pickPrefetch()
}

// pickPrefetch implements the weak-Tracker prefetch scan. Dead
// sources are swept from the registry as they're encountered.
func (s *Scheduler) pickPrefetch() *domain.Resource {
	s.prefetchMu.Lock()
	defer s.prefetchMu.Unlock()

	for id, src := range s.prefetch {
		if !src.Live() {
			delete(s.prefetch, id)
			continue
		}
		if r, ok := src.NextUninitialized(); ok {
			r.TryTransition(0, domain.Processing|domain.PreConnect, 0)
			r.TryTransition(domain.PreConnect, domain.Connecting, domain.PreConnect)
			return r
		}
	}
	for id, src := range s.prefetch {
		if !src.Live() {
			delete(s.prefetch, id)
			continue
		}
		if r, ok := src.NextConnected(); ok {
			r.TryTransition(domain.Connected, domain.Processing|domain.Downloading, 0)
			return r
		}
	}
	return nil
}

// spawnWorker starts a new worker goroutine if the pool has spare
// capacity; idle workers exit once selectNext returns nil, so the
// pool is self-deduplicating — calling spawnWorker when workers are
// already draining the queue just finds nothing to do and exits
// immediately once it acquires a semaphore slot.
func (s *Scheduler) spawnWorker() {
	if !s.sem.TryAcquire(1) {
		return
	}
	go func() {
		defer s.sem.Release(1)
		for {
			r := s.selectNext()
			if r == nil {
				return
			}
			s.dispatch(r)
		}
	}()
}
