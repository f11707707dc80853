package domain

import "errors"

// Sentinel error kinds a caller can match with errors.Is. Every
// worker-side failure is reported through one of these rather than an
// ad-hoc message, so callers can branch on failure class instead of
// parsing strings.
var (
	// ErrInvalidDescriptor means the caller referenced a resource that
	// was never added to any Tracker.
	ErrInvalidDescriptor = errors.New("invalid-descriptor: resource was never added")

	// ErrIllegalURL means a URL could not be normalized.
	ErrIllegalURL = errors.New("illegal-url: could not normalize")

	// ErrNetworkUnreachable means every candidate URL failed with a
	// transport-level I/O error.
	ErrNetworkUnreachable = errors.New("network-unreachable: no candidate URL answered")

	// ErrHTTPInvalidStatus means every candidate returned a non-2xx
	// status that was not classified as a redirect.
	ErrHTTPInvalidStatus = errors.New("http-invalid-status: no candidate URL returned success")

	// ErrRedirectionDisallowed means a candidate answered with a 3xx
	// redirect while redirect policy forbids following it.
	ErrRedirectionDisallowed = errors.New("redirection-disallowed: redirect received but policy forbids following it")

	// ErrIOFailure means a read or write during transfer failed.
	ErrIOFailure = errors.New("io-failure: transfer read or write failed")

	// ErrDecodeFailure means gzip or tabular-pack decoding failed.
	ErrDecodeFailure = errors.New("decode-failure: content decoding failed")

	// ErrCancelled means a waiter was interrupted via its
	// context.Context before the wait completed.
	ErrCancelled = errors.New("cancelled: wait was cancelled")
)
