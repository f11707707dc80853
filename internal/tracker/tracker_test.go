package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvusflow/rescache/internal/cache"
	"github.com/corvusflow/rescache/internal/domain"
	"github.com/corvusflow/rescache/internal/downloader"
	"github.com/corvusflow/rescache/internal/netenv"
	"github.com/corvusflow/rescache/internal/prober"
	"github.com/corvusflow/rescache/internal/scheduler"
)

// harness wires the full engine the way app.Context does, minus
// configuration loading, so tests can drive it directly.
type harness struct {
	store     *cache.Store
	scheduler *scheduler.Scheduler
	registry  *domain.Registry
}

func newHarness(t *testing.T, runtime netenv.Runtime) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := cache.NewStore(dir)
	require.NoError(t, err)

	worker := &downloader.Worker{
		Store:   store,
		Prober:  prober.New(http.DefaultClient, runtime),
		Runtime: runtime,
		Client:  http.DefaultClient,
		Notify:  func(*domain.Resource, domain.EventKind) {},
	}

	h := &harness{store: store, registry: domain.NewRegistry()}
	h.scheduler = scheduler.New(2, worker.Run)
	worker.Broadcast = h.scheduler.Broadcast
	worker.Requeue = h.scheduler.Enqueue
	worker.Client = &http.Client{}
	return h
}

func (h *harness) newTracker(prefetch bool) *Tracker {
	return New(h.registry, h.scheduler, h.store, prefetch)
}

func TestAddResourceIdempotent(t *testing.T) {
	h := newHarness(t, &netenv.Fake{Online: true, AllowRedirect: true})
	tr := h.newTracker(false)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "T0")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := tr.AddResource(server.URL+"/a.jar", domain.NoVersion, domain.DownloadOptions{}, domain.PolicySession)
	require.NoError(t, err)
	_, err = tr.AddResource(server.URL+"/a.jar", domain.NoVersion, domain.DownloadOptions{}, domain.PolicySession)
	require.NoError(t, err, "AddResource should be idempotent")

	assert.Len(t, tr.resources, 1)
}

func TestPlainHitDownloadsAndMaterializes(t *testing.T) {
	h := newHarness(t, &netenv.Fake{Online: true, AllowRedirect: true})
	tr := h.newTracker(false)

	body := "0123456789"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "T0")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "10")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte(body))
	}))
	defer server.Close()

	target := server.URL + "/a.jar"
	_, err := tr.AddResource(target, domain.NoVersion, domain.DownloadOptions{}, domain.PolicySession)
	require.NoError(t, err)

	ok, err := tr.WaitFor(context.Background(), []string{target}, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok, "WaitFor timed out")

	path, err := tr.GetCacheFile(context.Background(), target)
	require.NoError(t, err)
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	transferred, _ := tr.AmountRead(target)
	assert.EqualValues(t, len(body), transferred)
}

func TestRedirectDisallowedReachesError(t *testing.T) {
	h := newHarness(t, &netenv.Fake{Online: true, AllowRedirect: false})
	tr := h.newTracker(false)

	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	target := server.URL + "/a"
	_, err := tr.AddResource(target, domain.NoVersion, domain.DownloadOptions{}, domain.PolicySession)
	require.NoError(t, err)

	ok, err := tr.WaitFor(context.Background(), []string{target}, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok, "WaitFor should return true: the resource reaches a terminal ERROR state, not a timeout")

	path, err := tr.GetCacheFile(context.Background(), target)
	require.NoError(t, err)
	assert.Empty(t, path, "expected no file for an ERROR-terminal resource")
}

func TestFileURLNotCacheableMarksTerminalWithoutNetwork(t *testing.T) {
	h := newHarness(t, &netenv.Fake{Online: false})
	tr := h.newTracker(false)

	dir := t.TempDir()
	f, err := os.CreateTemp(dir, "local-*.txt")
	require.NoError(t, err)
	f.WriteString("local content")
	f.Close()

	target := "file://" + f.Name()
	r, err := tr.AddResource(target, domain.NoVersion, domain.DownloadOptions{}, domain.PolicySession)
	require.NoError(t, err)

	assert.True(t, r.State().Has(domain.Downloaded), "file:// resource should be immediately terminal, state = %s", r.State())

	path, err := tr.GetCacheFile(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, f.Name(), path)
}
