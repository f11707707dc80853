package prober

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvusflow/rescache/internal/domain"
	"github.com/corvusflow/rescache/internal/netenv"
)

func TestFindBestURLFollowsAllowedRedirect(t *testing.T) {
	var bServerURL string

	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, bServerURL, http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	bServerURL = server.URL + "/b"

	loc, err := url.Parse(server.URL + "/a")
	require.NoError(t, err)

	p := New(server.Client(), &netenv.Fake{Online: true, AllowRedirect: true})
	result, err := p.FindBestURL(loc, domain.NoVersion, domain.DownloadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/b", result.URL.Path)
	assert.Equal(t, domain.RequestHEAD, result.Method)
}

func TestFindBestURLRedirectDisallowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	loc, err := url.Parse(server.URL + "/a")
	require.NoError(t, err)

	p := New(server.Client(), &netenv.Fake{Online: true, AllowRedirect: false})
	_, err = p.FindBestURL(loc, domain.NoVersion, domain.DownloadOptions{})
	assert.Error(t, err, "expected redirection-disallowed error")
}

func TestFindBestURLNoRepeatOfMethodAndURL(t *testing.T) {
	seen := make(map[string]int)
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		seen[r.Method]++
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	loc, err := url.Parse(server.URL + "/a")
	require.NoError(t, err)
	p := New(server.Client(), &netenv.Fake{Online: true, AllowRedirect: true})
	_, err = p.FindBestURL(loc, domain.NoVersion, domain.DownloadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, seen["HEAD"], "HEAD should be probed exactly once")
	assert.Equal(t, 0, seen["GET"], "GET should not be attempted once HEAD succeeds")
}
