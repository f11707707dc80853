// Package prober selects the best candidate URL for a resource by
// probing HEAD then GET across a growing list of candidates,
// following redirects under policy, and refusing to probe the same
// (method, url) pair twice in one invocation.
package prober

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/corvusflow/rescache/internal/domain"
	"github.com/corvusflow/rescache/internal/netenv"
)

// Candidate generator mirrors ResourceUrlCreator: given the resource's
// base location, version, and options, it produces the URL variants
// worth probing before the bare location itself.
type CandidateCreator struct{}

// Candidates returns the base location plus any version- or
// pack-suffixed variants DownloadOptions calls for, version-suffixed
// variants first so a version-pinned artifact is preferred over the
// unpinned one.
func (CandidateCreator) Candidates(location *url.URL, version domain.Version, opts domain.DownloadOptions) []*url.URL {
	var out []*url.URL
	add := func(u url.URL) { out = append(out, &u) }

	if opts.UseVersionSuffix && !version.IsZero() {
		versioned := *location
		versioned.Path += "-" + version.String()
		if opts.UsePackSuffix {
			packed := versioned
			packed.Path += ".pack.gz"
			add(packed)
		}
		add(versioned)
	}
	if opts.UsePackSuffix {
		packed := *location
		packed.Path += ".pack.gz"
		add(packed)
	}
	add(*location)
	return out
}

// Result is what find_best_url publishes about the candidate it
// settled on.
type Result struct {
	URL             *url.URL
	Method          domain.RequestMethod
	ContentLength   int64
	LastModified    string
	ContentEncoding string
}

// probed is a (method, url) pair already attempted, the no-repeat
// bookkeeping §8 property 3 requires.
type probed struct {
	method domain.RequestMethod
	url    string
}

// Prober runs the HEAD/GET cartesian probe.
type Prober struct {
	Client  *http.Client
	Runtime netenv.Runtime
}

// New constructs a Prober around client. New sets no timeout of its
// own: each probe request is bounded only by client's Timeout.
func New(client *http.Client, runtime netenv.Runtime) *Prober {
	return &Prober{Client: client, Runtime: runtime}
}

// FindBestURL enumerates candidates via creator, then probes
// request_methods × candidates in order with methods outer — every
// candidate (and every redirect target it yields) is tried with HEAD
// before any candidate is tried with GET, so HEAD is preferred
// whenever it can answer — appending redirect targets to the
// candidate queue breadth-first, until one answers success.
func (p *Prober) FindBestURL(location *url.URL, version domain.Version, opts domain.DownloadOptions) (*Result, error) {
	candidates := CandidateCreator{}.Candidates(location, version, opts)
	seen := make(map[probed]bool)
	var networkErr bool
	var sawInvalidStatus bool

	for _, method := range domain.RequestMethods {
		for i := 0; i < len(candidates); i++ {
			candidate := candidates[i]
			key := probed{method: method, url: candidate.String()}
			if seen[key] {
				continue
			}
			seen[key] = true

			result, redirectTo, err := p.probeOne(candidate, method)
			switch {
			case err == errRedirectDisallowed:
				return nil, fmt.Errorf("%w", domain.ErrRedirectionDisallowed)
			case err == errTransport:
				networkErr = true
				continue
			case err == errInvalidStatus:
				sawInvalidStatus = true
				continue
			case err != nil:
				return nil, err
			case redirectTo != nil:
				candidates = append(candidates, redirectTo)
				continue
			default:
				return result, nil
			}
		}
	}

	if sawInvalidStatus {
		return nil, domain.ErrHTTPInvalidStatus
	}
	if networkErr {
		return nil, domain.ErrNetworkUnreachable
	}
	return nil, domain.ErrNetworkUnreachable
}

var (
	errRedirectDisallowed = fmt.Errorf("redirect disallowed")
	errTransport           = fmt.Errorf("transport error")
	errInvalidStatus       = fmt.Errorf("invalid status")
)

func (p *Prober) probeOne(candidate *url.URL, method domain.RequestMethod) (*Result, *url.URL, error) {
	req, err := http.NewRequest(string(method), candidate.String(), nil)
	if err != nil {
		return nil, nil, errTransport
	}
	req.Header.Set("Accept-Encoding", "pack200-gzip, gzip")

	// Redirects are classified below under the runtime's policy, so the
	// client must hand back the 3xx response instead of following it.
	client := *p.Client
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, errTransport
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case 301, 302, 303, 307, 308:
		loc := resp.Header.Get("Location")
		if loc == "" {
			return nil, nil, errInvalidStatus
		}
		if !p.Runtime.IsAllowRedirect() {
			return nil, nil, errRedirectDisallowed
		}
		target, err := candidate.Parse(loc)
		if err != nil {
			return nil, nil, errInvalidStatus
		}
		return nil, target, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, errInvalidStatus
	}

	return &Result{
		URL:             candidate,
		Method:          method,
		ContentLength:   resp.ContentLength,
		LastModified:    resp.Header.Get("Last-Modified"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
	}, nil, nil
}
