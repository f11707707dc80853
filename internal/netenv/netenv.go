// Package netenv is the ambient environment collaborator the connect
// phase consults before doing any network work: whether the process
// is online at all, whether an operator has forced offline mode, and
// whether following redirects is permitted.
package netenv

import (
	"net"
	"net/url"
	"sync/atomic"
	"time"
)

// Runtime answers the ambient questions the connect phase and the
// URL prober need before doing network I/O.
type Runtime interface {
	IsOnline() bool
	IsOfflineForced() bool
	DetectOnline(location *url.URL) bool
	IsAllowRedirect() bool
}

// Default is the production Runtime: offline-forced is a manual
// switch an operator can flip, online detection is a best-effort TCP
// dial to the candidate host, and redirect policy is a fixed
// configuration value set at construction.
type Default struct {
	offlineForced atomic.Bool
	allowRedirect bool
	dialTimeout   time.Duration
}

// NewDefault constructs the production Runtime with the given
// redirect policy.
func NewDefault(allowRedirect bool) *Default {
	return &Default{allowRedirect: allowRedirect, dialTimeout: 3 * time.Second}
}

// ForceOffline flips the manual offline switch. Intended for an
// operator-facing control surface (a CLI flag or admin endpoint), not
// for per-request use.
func (d *Default) ForceOffline(forced bool) { d.offlineForced.Store(forced) }

func (d *Default) IsOfflineForced() bool { return d.offlineForced.Load() }

// IsOnline reports whether the process believes it has network
// connectivity at all, independent of any specific resource.
func (d *Default) IsOnline() bool {
	if d.offlineForced.Load() {
		return false
	}
	conn, err := net.DialTimeout("tcp", "1.1.1.1:80", d.dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DetectOnline reports whether location's host is reachable at the
// TCP level, the reachability probe the connect phase runs before
// attempting an HTTP request.
func (d *Default) DetectOnline(location *url.URL) bool {
	if d.offlineForced.Load() {
		return false
	}
	host := location.Host
	if host == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", hostWithPort(location), d.dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func hostWithPort(location *url.URL) string {
	if location.Port() != "" {
		return location.Host
	}
	switch location.Scheme {
	case "https":
		return location.Host + ":443"
	default:
		return location.Host + ":80"
	}
}

func (d *Default) IsAllowRedirect() bool { return d.allowRedirect }

// Fake is a test double with every answer set directly, used by
// tests that want to drive the connect phase through a specific
// online/offline/redirect-policy combination without opening sockets.
type Fake struct {
	Online        bool
	OfflineForced bool
	AllowRedirect bool
}

func (f *Fake) IsOnline() bool                          { return f.Online && !f.OfflineForced }
func (f *Fake) IsOfflineForced() bool                   { return f.OfflineForced }
func (f *Fake) DetectOnline(location *url.URL) bool     { return f.Online && !f.OfflineForced }
func (f *Fake) IsAllowRedirect() bool                   { return f.AllowRedirect }
