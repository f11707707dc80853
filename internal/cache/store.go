// Package cache implements the on-disk artifact store: deterministic
// cache paths keyed by (location, version, suffix), atomic write
// finalization, and the line-oriented CacheEntry sidecar that records
// per-artifact freshness metadata.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/corvusflow/rescache/internal/domain"
)

// Store is the pure filesystem half of the cache: it knows how to
// name, allocate, and open artifact files, but holds no metadata of
// its own — that lives in the CacheEntry sidecar next to each file.
type Store struct {
	root string
}

// NewStore roots a Store at dir, creating it if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache root: %v", domain.ErrIOFailure, err)
	}
	return &Store{root: dir}, nil
}

// Root returns the directory the store is rooted at.
func (s *Store) Root() string { return s.root }

// IsCacheable reports whether location's scheme admits caching at
// all. file:// URLs are never cached: get_cache_file serves them
// straight from disk. Every http/https URL is cacheable.
func (s *Store) IsCacheable(location *url.URL) bool {
	switch location.Scheme {
	case "http", "https":
		return true
	default:
		return false
	}
}

// digest returns the content-addressed key for (location, version,
// suffix): a location.jar and its .pack.gz sibling hash to different
// keys because suffix is folded into the digest, the generalization
// of appending the suffix to the origin location string.
func digest(location *url.URL, version domain.Version, suffix string) string {
	h := sha256.New()
	h.Write([]byte(location.String()))
	h.Write([]byte{0})
	h.Write([]byte(version.String()))
	h.Write([]byte{0})
	h.Write([]byte(suffix))
	return hex.EncodeToString(h.Sum(nil))
}

// baseName derives a human-legible filename component from the
// location's final path segment, falling back to "artifact" for
// paths with no usable segment.
func baseName(location *url.URL) string {
	base := filepath.Base(location.Path)
	if base == "" || base == "." || base == "/" {
		return "artifact"
	}
	return base
}

// CacheFileFor returns the deterministic artifact path for
// (location, version) with the given suffix ("" for the plain
// artifact, ".pack.gz" or ".gz" for a compressed variant), sharded
// two levels deep the way content-addressed stores avoid huge flat
// directories.
func (s *Store) CacheFileFor(location *url.URL, version domain.Version, suffix string) string {
	key := digest(location, version, suffix)
	name := baseName(location) + suffix
	return filepath.Join(s.root, key[:2], key[2:4], key, name)
}

// MakeNewCacheFile allocates a fresh path distinct from any existing
// cache file for (location, version, suffix) by appending a
// monotonic counter suffix to the sharded directory, used when the
// connect phase decides the existing artifact is stale and must be
// replaced without clobbering a reader that still holds the old file
// open.
func (s *Store) MakeNewCacheFile(location *url.URL, version domain.Version, suffix string) (string, error) {
	base := s.CacheFileFor(location, version, suffix)
	dir := filepath.Dir(base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	for i := 0; ; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s.%d", base, i)
		}
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}

// OpenOutputStream opens a buffered write stream to the deterministic
// cache file for (location, version, suffix), writing through a
// temporary sibling that is renamed into place on Close so a reader
// never observes a partially written artifact.
func (s *Store) OpenOutputStream(location *url.URL, version domain.Version, suffix string) (io.WriteCloser, error) {
	final := s.CacheFileFor(location, version, suffix)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(final), ".tmp-"+filepath.Base(final)+"-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	return &atomicWriter{tmp: tmp, final: final}, nil
}

// atomicWriter buffers writes to a temp file and renames it into
// place on a clean Close; on any write error the temp file is removed
// instead of being published.
type atomicWriter struct {
	tmp    *os.File
	final  string
	failed bool
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	if err != nil {
		w.failed = true
	}
	return n, err
}

func (w *atomicWriter) Close() error {
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	if w.failed {
		os.Remove(w.tmp.Name())
		return domain.ErrIOFailure
	}
	if err := os.Rename(w.tmp.Name(), w.final); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	return nil
}

// IsCurrent compares the sidecar entry for (location, version,
// suffix) against a freshly observed remote Last-Modified value. A
// missing sidecar or artifact is never current.
func (s *Store) IsCurrent(location *url.URL, version domain.Version, suffix, remoteLastModified string) bool {
	path := s.CacheFileFor(location, version, suffix)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	entry, err := LoadEntry(sidecarPath(path))
	if err != nil {
		return false
	}
	return !entry.DeleteFlag && entry.LastModified != "" && entry.LastModified == remoteLastModified
}

// sidecarPath derives the CacheEntry path co-located with an artifact
// path.
func sidecarPath(artifactPath string) string {
	return artifactPath + ".entry"
}

// lockPath derives the inter-process lock path co-located with an
// artifact path.
func lockPath(artifactPath string) string {
	return artifactPath + ".lock"
}

