package cache

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/corvusflow/rescache/internal/domain"
)

// Entry is the metadata sidecar co-located with each cached artifact.
type Entry struct {
	RemoteContentLength   int64
	OriginalContentLength int64
	LastModified          string
	LastUpdated           time.Time
	DeleteFlag            bool
}

// LoadEntry reads a sidecar file. A missing file is reported as a
// plain os error so callers can distinguish "no entry yet" from a
// corrupt one.
func LoadEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	e := &Entry{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "remote_content_length":
			e.RemoteContentLength, _ = strconv.ParseInt(value, 10, 64)
		case "original_content_length":
			e.OriginalContentLength, _ = strconv.ParseInt(value, 10, 64)
		case "last_modified":
			e.LastModified = value
		case "last_updated":
			if sec, err := strconv.ParseInt(value, 10, 64); err == nil {
				e.LastUpdated = time.Unix(sec, 0).UTC()
			}
		case "delete_flag":
			e.DeleteFlag = value == "true"
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	return e, nil
}

// Store writes the sidecar atomically via a temp-file-then-rename, so
// a reader never observes a half-written entry.
func (e *Entry) Store(path string) error {
	tmp, err := os.CreateTemp("", ".entry-*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	fmt.Fprintf(w, "remote_content_length=%d\n", e.RemoteContentLength)
	fmt.Fprintf(w, "original_content_length=%d\n", e.OriginalContentLength)
	fmt.Fprintf(w, "last_modified=%s\n", e.LastModified)
	fmt.Fprintf(w, "last_updated=%d\n", e.LastUpdated.Unix())
	fmt.Fprintf(w, "delete_flag=%t\n", e.DeleteFlag)
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	return nil
}

// MarkForDelete sets the soft-tombstone flag; the entry and its
// artifact are swept later by the GC pass, never deleted inline.
func (e *Entry) MarkForDelete() { e.DeleteFlag = true }

// EntryFor loads the sidecar for a cache artifact path, returning a
// zero-value Entry (not an error) when none exists yet — the common
// case for a first-time fetch.
func EntryFor(artifactPath string) (*Entry, error) {
	e, err := LoadEntry(sidecarPath(artifactPath))
	if os.IsNotExist(err) {
		return &Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// StoreFor persists the sidecar for a cache artifact path, stamping
// LastUpdated to now.
func (e *Entry) StoreFor(artifactPath string, now time.Time) error {
	e.LastUpdated = now
	return e.Store(sidecarPath(artifactPath))
}
