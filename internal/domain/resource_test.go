package domain

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := NormalizeURL(raw)
	require.NoError(t, err)
	return u
}

func TestTryTransitionRequiresFlags(t *testing.T) {
	loc := mustURL(t, "http://h/a.jar")
	r := newResource(loc, NoVersion, DownloadOptions{}, PolicySession)

	assert.False(t, r.TryTransition(Connecting, Connected, Connecting), "transition should fail: resource has no flags set yet")
	assert.True(t, r.TryTransition(0, PreConnect, 0), "transition from empty state to PRECONNECT should succeed")
	assert.True(t, r.TryTransition(PreConnect, Connecting, PreConnect), "PRECONNECT -> CONNECTING should succeed")
	assert.Equal(t, Connecting, r.State())
}

func TestRegistryInternsByIdentity(t *testing.T) {
	reg := NewRegistry()
	loc := mustURL(t, "http://h/a.jar")

	r1 := reg.Intern(loc, NoVersion, DownloadOptions{}, PolicySession, 1)
	r2 := reg.Intern(loc, NoVersion, DownloadOptions{}, PolicySession, 2)

	assert.Same(t, r1, r2, "two interns of the same identity should share one *Resource")
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryDropsTerminalUnreferencedEntry(t *testing.T) {
	reg := NewRegistry()
	loc := mustURL(t, "http://h/a.jar")

	r := reg.Intern(loc, NoVersion, DownloadOptions{}, PolicySession, 1)
	r.TryTransition(0, Downloaded, 0)

	reg.Detach(r.Key(), 1)

	assert.Equal(t, 0, reg.Len(), "terminal resource with no attached trackers should be dropped")
}

func TestRegistryKeepsNonTerminalEntryOnDetach(t *testing.T) {
	reg := NewRegistry()
	loc := mustURL(t, "http://h/a.jar")

	r := reg.Intern(loc, NoVersion, DownloadOptions{}, PolicySession, 1)
	reg.Detach(r.Key(), 1)

	assert.Equal(t, 1, reg.Len(), "non-terminal resource should stay interned even with no attached trackers")
}

func TestResourceTransferredMonotonic(t *testing.T) {
	loc := mustURL(t, "http://h/a.jar")
	r := newResource(loc, NoVersion, DownloadOptions{}, PolicySession)

	r.AddTransferred(10)
	r.AddTransferred(5)

	assert.EqualValues(t, 15, r.Snap().Transferred)
}
