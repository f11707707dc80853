// Package downloader executes the two-phase resource lifecycle the
// scheduler dispatches work into: connect (probe, open, decide
// currency) and download (transfer, decode, finalize). Both phases
// run inside the privileged scope and release the cache entry lock on
// every exit path.
package downloader

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/corvusflow/rescache/internal/cache"
	"github.com/corvusflow/rescache/internal/domain"
	"github.com/corvusflow/rescache/internal/netenv"
	"github.com/corvusflow/rescache/internal/pack200"
	"github.com/corvusflow/rescache/internal/privileged"
	"github.com/corvusflow/rescache/internal/prober"
)

const chunkSize = 32 * 1024

// Notifier is called at each phase milestone so listener dispatch can
// fire without the downloader knowing anything about Trackers.
type Notifier func(*domain.Resource, domain.EventKind)

// Worker executes connect and download phases for whatever resource
// the scheduler hands it.
type Worker struct {
	Store     *cache.Store
	Catalog   *cache.Catalog
	Prober    *prober.Prober
	Runtime   netenv.Runtime
	Client    *http.Client
	Notify    Notifier
	Broadcast func()

	// Requeue pushes a resource back onto the scheduler's demand
	// queue. runConnect calls this after a non-current connect leaves
	// PREDOWNLOAD set, mirroring the re-queue the original tracker
	// performs when a resource still needs its download phase.
	Requeue func(*domain.Resource)
}

// Run is the dispatch entry point the scheduler calls for a selected
// resource: it picks the phase from the resource's current flags.
func (w *Worker) Run(r *domain.Resource) {
	switch {
	case r.State().Has(domain.Connecting):
		w.connect(r)
	case r.State().Has(domain.Downloading):
		w.download(r)
	}
}

func (w *Worker) connect(r *domain.Resource) {
	w.Notify(r, domain.EventUpdateStarted)

	err := privileged.Execute(func() error { return w.runConnect(r) })
	if err != nil {
		r.SetError(err)
		r.TryTransition(0, domain.Error, domain.Connecting|domain.PreConnect)
		w.Broadcast()
		w.Notify(r, domain.ClassifyEvent(r.State()))
		return
	}
	w.Broadcast()
	w.Notify(r, domain.ClassifyEvent(r.State()))

	if r.State().Has(domain.PreDownload) {
		w.Requeue(r)
	}
}

func (w *Worker) runConnect(r *domain.Resource) error {
	location := r.Location()
	version := r.Version()

	online := !w.Runtime.IsOfflineForced() && w.Runtime.DetectOnline(location)

	if !w.Store.IsCacheable(location) {
		r.TryTransition(0, domain.Connected|domain.Downloaded, domain.Connecting|domain.PreConnect)
		return nil
	}

	final := w.Store.CacheFileFor(location, version, "")
	lock := cache.NewEntryLock(final)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	if location.Scheme == "file" {
		if _, err := os.Stat(location.Path); err == nil {
			r.SetLocalFile(location.Path)
			r.TryTransition(0, domain.Connected|domain.Downloaded, domain.Connecting|domain.PreConnect)
			return nil
		}
		r.TryTransition(0, domain.Connected|domain.Downloaded, domain.Connecting|domain.PreConnect)
		return nil
	}

	if !online {
		return fmt.Errorf("%w: offline", domain.ErrNetworkUnreachable)
	}

	result, err := w.Prober.FindBestURL(location, version, r.Options())
	if err != nil {
		return err
	}
	r.SetConnectResult(result.URL, result.ContentEncoding, result.ContentLength)

	current := w.Store.IsCurrent(location, version, "", result.LastModified) && r.UpdatePolicy() != domain.PolicyForce

	entry, err := cache.EntryFor(final)
	if err != nil {
		return err
	}
	if !current {
		if _, statErr := os.Stat(final); statErr == nil {
			entry.MarkForDelete()
			if err := entry.StoreFor(final, time.Now()); err != nil {
				return err
			}
			if w.Catalog != nil {
				w.Catalog.RecordTombstone(final, time.Now())
			}
			final, err = w.Store.MakeNewCacheFile(location, version, "")
			if err != nil {
				return err
			}
			entry = &cache.Entry{}
		}
	}

	r.SetLocalFile(final)
	if current {
		r.TryTransition(0, domain.Connected, domain.Connecting|domain.PreConnect)
		r.TryTransition(domain.Connected, domain.Downloaded, domain.PreDownload|domain.Downloading)
	} else {
		r.TryTransition(0, domain.Connected|domain.PreDownload, domain.Connecting|domain.PreConnect)
		entry.RemoteContentLength = result.ContentLength
		entry.LastModified = result.LastModified
		if err := entry.StoreFor(final, time.Now()); err != nil {
			return err
		}
	}

	r.MarkRevalidated()
	return nil
}

func (w *Worker) download(r *domain.Resource) {
	w.Notify(r, domain.EventDownloadStarted)

	err := privileged.Execute(func() error { return w.runDownload(r) })
	if err != nil {
		r.SetError(err)
		r.TryTransition(0, domain.Error, domain.Downloading|domain.PreDownload)
		w.Broadcast()
		w.Notify(r, domain.ClassifyEvent(r.State()))
		return
	}
	r.TryTransition(domain.Downloading, domain.Downloaded, domain.Downloading|domain.PreDownload)
	w.Broadcast()
	w.Notify(r, domain.ClassifyEvent(r.State()))
}

func (w *Worker) runDownload(r *domain.Resource) error {
	snap := r.Snap()
	location := snap.DownloadLocation
	if location == nil {
		location = snap.Location
	}
	version := snap.Version

	req, err := http.NewRequest(string(domain.RequestGET), location.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	req.Header.Set("Accept-Encoding", "pack200-gzip, gzip")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	defer resp.Body.Close()

	encoding := classifyEncoding(resp.Header.Get("Content-Encoding"), location)
	downloadSuffix := suffixFor(encoding)
	finalPath := w.Store.CacheFileFor(snap.Location, version, "")
	downloadPath := w.Store.CacheFileFor(snap.Location, version, downloadSuffix)

	downloadLock := cache.NewEntryLock(downloadPath)
	if err := downloadLock.Lock(); err != nil {
		return err
	}
	defer downloadLock.Unlock()

	remoteLastModified := resp.Header.Get("Last-Modified")
	downloadEntry, err := cache.EntryFor(downloadPath)
	if err != nil {
		return err
	}

	if w.Store.IsCurrent(snap.Location, version, downloadSuffix, remoteLastModified) {
		info, statErr := os.Stat(downloadPath)
		if statErr == nil {
			r.AddTransferred(info.Size())
		}
	} else {
		if err := w.transfer(r, resp.Body, snap.Location, version, downloadSuffix); err != nil {
			return err
		}
		if encoding != contentPlain {
			downloadEntry.RemoteContentLength = resp.ContentLength
			downloadEntry.LastModified = remoteLastModified
			if err := downloadEntry.StoreFor(downloadPath, time.Now()); err != nil {
				return err
			}
		}
		if err := w.decode(encoding, downloadPath, finalPath); err != nil {
			return err
		}
	}

	if downloadPath != finalPath {
		finalEntry, err := cache.EntryFor(finalPath)
		if err != nil {
			return err
		}
		if info, statErr := os.Stat(finalPath); statErr == nil {
			finalEntry.OriginalContentLength = info.Size()
		}
		if err := finalEntry.StoreFor(finalPath, time.Now()); err != nil {
			return err
		}
		downloadEntry.MarkForDelete()
		if err := downloadEntry.StoreFor(downloadPath, time.Now()); err != nil {
			return err
		}
		if w.Catalog != nil {
			w.Catalog.RecordTombstone(downloadPath, time.Now())
		}
	}

	return nil
}

// transfer streams resp.Body into the download cache file in
// fixed-size chunks, incrementing the resource's transferred counter
// per chunk.
func (w *Worker) transfer(r *domain.Resource, body io.Reader, location *url.URL, version domain.Version, suffix string) error {
	out, err := w.Store.OpenOutputStream(location, version, suffix)
	if err != nil {
		return err
	}
	buf := make([]byte, chunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				return fmt.Errorf("%w: %v", domain.ErrIOFailure, writeErr)
			}
			r.AddTransferred(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return fmt.Errorf("%w: %v", domain.ErrIOFailure, readErr)
		}
	}
	return out.Close()
}

type contentEncoding int

const (
	contentPlain contentEncoding = iota
	contentGzip
	contentPackGz
)

func classifyEncoding(header string, downloadURL *url.URL) contentEncoding {
	switch header {
	case "pack200-gzip":
		return contentPackGz
	case "gzip":
		return contentGzip
	}
	path := downloadURL.Path
	if hasSuffix(path, ".pack.gz") {
		return contentPackGz
	}
	if hasSuffix(path, ".gz") {
		return contentGzip
	}
	return contentPlain
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func suffixFor(e contentEncoding) string {
	switch e {
	case contentPackGz:
		return ".pack.gz"
	case contentGzip:
		return ".gz"
	default:
		return ""
	}
}

// decode runs the content-encoding-appropriate pipeline from the
// downloaded artifact to the final one. Plain content needs no
// pipeline: the download path and the final path are the same file.
func (w *Worker) decode(e contentEncoding, downloadPath, finalPath string) error {
	switch e {
	case contentPlain:
		return nil
	case contentGzip:
		src, err := os.Open(downloadPath)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
		}
		defer src.Close()
		gz, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDecodeFailure, err)
		}
		defer gz.Close()
		return writeFinal(finalPath, gz)
	case contentPackGz:
		src, err := os.Open(downloadPath)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
		}
		defer src.Close()
		gz, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDecodeFailure, err)
		}
		defer gz.Close()

		out, err := os.Create(finalPath)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
		}
		defer out.Close()
		if err := (pack200.Unpacker{}).Unpack(gz, out); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDecodeFailure, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown encoding %d", domain.ErrDecodeFailure, int(e))
	}
}

func writeFinal(path string, r io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	return nil
}
