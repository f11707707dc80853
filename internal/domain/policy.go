package domain

// UpdatePolicy governs whether a cached copy may be used without
// revalidating against the remote Last-Modified header.
type UpdatePolicy int

const (
	// PolicySession revalidates at most once per Tracker's process
	// lifetime for a given resource; subsequent checks reuse the cache.
	PolicySession UpdatePolicy = iota
	// PolicyAlways revalidates against the remote on every check.
	PolicyAlways
	// PolicyForce ignores the cache entirely and refetches
	// unconditionally.
	PolicyForce
	// PolicyNever always trusts a cached copy once one exists, and
	// never issues a revalidation request.
	PolicyNever
)

func (p UpdatePolicy) String() string {
	switch p {
	case PolicySession:
		return "SESSION"
	case PolicyAlways:
		return "ALWAYS"
	case PolicyForce:
		return "FORCE"
	case PolicyNever:
		return "NEVER"
	default:
		return "UNKNOWN"
	}
}

// PermitsCachedUseWithoutConnect reports whether check_cache may mark
// a resource DOWNLOADED straight from the cache, without involving the
// connect phase at all. ALWAYS and FORCE never permit this — ALWAYS
// must revalidate and FORCE must refetch — so the connect phase always
// runs for those two policies.
func (p UpdatePolicy) PermitsCachedUseWithoutConnect(revalidatedThisSession bool) bool {
	switch p {
	case PolicyNever:
		return true
	case PolicySession:
		return revalidatedThisSession
	default:
		return false
	}
}
