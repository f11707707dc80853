package scheduler

import (
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvusflow/rescache/internal/domain"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := domain.NormalizeURL(raw)
	require.NoError(t, err)
	return u
}

func newResource(t *testing.T, raw string, state domain.State) *domain.Resource {
	t.Helper()
	reg := domain.NewRegistry()
	r := reg.Intern(mustURL(t, raw), domain.NoVersion, domain.DownloadOptions{}, domain.PolicySession, 1)
	r.TryTransition(0, state, 0)
	return r
}

func TestEnqueuedDemandResourceIsDispatched(t *testing.T) {
	var ran []*domain.Resource
	var mu sync.Mutex
	done := make(chan struct{})

	s := New(1, func(r *domain.Resource) {
		mu.Lock()
		ran = append(ran, r)
		mu.Unlock()
		r.TryTransition(0, domain.Downloaded, domain.Connecting|domain.PreConnect)
		select {
		case done <- struct{}{}:
		default:
		}
	})

	demandResource := newResource(t, "http://h/demand.jar", domain.PreConnect)
	s.Enqueue(demandResource)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker to run")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ran, 1)
	assert.Same(t, demandResource, ran[0])
}

type fakePrefetchSource struct {
	id        uintptr
	resource  *domain.Resource
	delivered bool
}

func (f *fakePrefetchSource) ID() uintptr { return f.id }
func (f *fakePrefetchSource) Live() bool  { return true }
func (f *fakePrefetchSource) NextUninitialized() (*domain.Resource, bool) {
	if f.delivered || f.resource.State().Initialized() {
		return nil, false
	}
	f.delivered = true
	return f.resource, true
}
func (f *fakePrefetchSource) NextConnected() (*domain.Resource, bool) { return nil, false }

func TestPickPrefetchReturnsUninitializedResource(t *testing.T) {
	s := New(1, func(r *domain.Resource) {})

	reg := domain.NewRegistry()
	loc := mustURL(t, "http://h/prefetch.jar")
	r := reg.Intern(loc, domain.NoVersion, domain.DownloadOptions{}, domain.PolicySession, 1)

	src := &fakePrefetchSource{id: 99, resource: r}
	s.RegisterPrefetch(src)

	got := s.pickPrefetch()
	assert.Same(t, r, got, "pickPrefetch should return the uninitialized prefetch resource")
	assert.True(t, got.State().HasAny(domain.Processing), "picked prefetch resource should be marked PROCESSING")
}
