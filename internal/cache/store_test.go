package cache

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvusflow/rescache/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "rescache-cache-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := NewStore(dir)
	require.NoError(t, err)
	return s
}

func TestIsCacheable(t *testing.T) {
	s := newTestStore(t)
	httpURL, err := domain.NormalizeURL("http://h/a.jar")
	require.NoError(t, err)
	fileURL, err := domain.NormalizeURL("file:///tmp/a.jar")
	require.NoError(t, err)

	assert.True(t, s.IsCacheable(httpURL), "http:// should be cacheable")
	assert.False(t, s.IsCacheable(fileURL), "file:// should not be cacheable")
}

func TestCacheFileForIsDeterministicAndSuffixSensitive(t *testing.T) {
	s := newTestStore(t)
	loc, err := domain.NormalizeURL("http://h/a.jar")
	require.NoError(t, err)

	p1 := s.CacheFileFor(loc, domain.NoVersion, "")
	p2 := s.CacheFileFor(loc, domain.NoVersion, "")
	pGz := s.CacheFileFor(loc, domain.NoVersion, ".gz")

	assert.Equal(t, p1, p2, "CacheFileFor should be deterministic for the same inputs")
	assert.NotEqual(t, p1, pGz, "a .gz suffix should key to a different path than the plain artifact")
}

func TestOpenOutputStreamIsAtomic(t *testing.T) {
	s := newTestStore(t)
	loc, err := domain.NormalizeURL("http://h/a.jar")
	require.NoError(t, err)

	out, err := s.OpenOutputStream(loc, domain.NoVersion, "")
	require.NoError(t, err)
	final := s.CacheFileFor(loc, domain.NoVersion, "")
	_, statErr := os.Stat(final)
	assert.True(t, os.IsNotExist(statErr), "final path should not exist before Close")

	_, err = io.WriteString(out, "hello")
	require.NoError(t, err)
	require.NoError(t, out.Close())

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestIsCurrentFalseWithoutEntry(t *testing.T) {
	s := newTestStore(t)
	loc, err := domain.NormalizeURL("http://h/a.jar")
	require.NoError(t, err)

	assert.False(t, s.IsCurrent(loc, domain.NoVersion, "", "T0"), "IsCurrent should be false when no sidecar exists yet")
}
