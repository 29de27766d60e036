// Package apperrors names the error kinds and propagation policy of
// spec.md §7, so that callers can classify an error without re-deriving
// the policy table at every call site.
package apperrors

import "errors"

// Kind is one of the five error categories spec.md §7 defines.
type Kind int

const (
	// KindUnknown is returned by Classify for errors not wrapping any of
	// the sentinels below; callers should treat it like KindFatal is too
	// strong and KindTransientIO is too permissive — in practice this
	// module never returns an unclassified error from a boundary that
	// matters, so KindUnknown should not appear outside of tests.
	KindUnknown Kind = iota
	KindTransientIO
	KindTransientLocal
	KindProtocol
	KindCatalogInvariant
	KindFatal
)

// Sentinel errors. Wrap one of these with fmt.Errorf("...: %w", Sentinel)
// at the point of failure; Classify unwraps to find it.
var (
	// TransientIO: socket interrupts, short reads, NAT-PMP timeouts,
	// database busy. Policy: retry with backoff.
	TransientIO = errors.New("transient I/O error")

	// TransientLocal: file open/read failures during indexing. Policy:
	// skip the entry for this pass.
	TransientLocal = errors.New("transient local error")

	// Protocol: bad handshake fields, out-of-range enumerations,
	// unexpected operation code. Policy: close session, reopen.
	Protocol = errors.New("protocol error")

	// CatalogInvariant: trigger failure, unique constraint violation on an
	// already-processed path — indicates corruption. Policy: abort
	// rescan, disconnect the database, log, sleep, retry.
	CatalogInvariant = errors.New("catalog invariant violated")

	// Fatal: failure to create ~/.homeostas, failure to open the
	// configuration store at startup. Policy: exit.
	Fatal = errors.New("fatal error")
)

// Classify reports which of the five kinds err belongs to, or KindUnknown
// if it wraps none of the sentinels.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, Fatal):
		return KindFatal
	case errors.Is(err, CatalogInvariant):
		return KindCatalogInvariant
	case errors.Is(err, Protocol):
		return KindProtocol
	case errors.Is(err, TransientLocal):
		return KindTransientLocal
	case errors.Is(err, TransientIO):
		return KindTransientIO
	default:
		return KindUnknown
	}
}

// Surfaces reports whether a Kind is ever shown to the user directly.
// Transient kinds never surface; protocol and catalog kinds are logged;
// fatal kinds terminate the process with a message (spec.md §7).
func (k Kind) Surfaces() bool {
	return k == KindProtocol || k == KindCatalogInvariant || k == KindFatal
}

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient-io"
	case KindTransientLocal:
		return "transient-local"
	case KindProtocol:
		return "protocol"
	case KindCatalogInvariant:
		return "catalog-invariant"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
