package coordinator

import "errors"

// Error taxonomy for the request path. Handlers map these onto HTTP
// statuses; everything else is an internal error.
var (
	// ErrDependencyUnavailable means a required service (timestamp
	// issuer, collector, cabinet, seer) could not be reached. The
	// operation is failed cleanly rather than skipping ordering or
	// quorum checks.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrMasterUnreachable means the current master did not accept an
	// operation. It triggers the failover state machine.
	ErrMasterUnreachable = errors.New("master unreachable")

	// ErrQuorumNotSatisfied means a write committed on the master but
	// the quorum never confirmed within the timeout. The write is
	// durable; clients must be able to tell this apart from a failure.
	ErrQuorumNotSatisfied = errors.New("quorum not satisfied")

	// ErrFailoverInProgress rejects a failover or election request
	// while one is already running.
	ErrFailoverInProgress = errors.New("failover already in progress")

	// ErrMalformedQuery means the statement could not be classified as
	// read or write. Rejected before any timestamp or execution side
	// effect.
	ErrMalformedQuery = errors.New("malformed query")

	// ErrNoReadCandidates means no replica nor the master could serve
	// a read.
	ErrNoReadCandidates = errors.New("no read candidates available")
)
