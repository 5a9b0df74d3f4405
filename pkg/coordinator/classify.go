package coordinator

import (
	"fmt"
	"strings"
)

// QueryKind is the closed classification of a statement. Dispatch
// happens once at the request boundary; nothing downstream looks at
// the SQL text again to decide routing.
type QueryKind int

const (
	KindUnknown QueryKind = iota
	KindRead
	KindWrite
)

func (k QueryKind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// ConsistencyLevel selects the write confirmation strategy.
type ConsistencyLevel int

const (
	// Eventual returns once the master commits; replicas catch up
	// through the storage engine's own propagation.
	Eventual ConsistencyLevel = iota
	// Strong additionally waits for a Cabinet-selected quorum to
	// confirm the issued timestamp, up to a bounded timeout.
	Strong
)

func (c ConsistencyLevel) String() string {
	if c == Strong {
		return "STRONG"
	}
	return "EVENTUAL"
}

// ParseConsistency maps the wire value onto the enum. Empty means
// Eventual; anything else unrecognized is an error.
func ParseConsistency(s string) (ConsistencyLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "EVENTUAL":
		return Eventual, nil
	case "STRONG":
		return Strong, nil
	default:
		return Eventual, fmt.Errorf("unknown consistency level %q", s)
	}
}

// readVerbs and writeVerbs are the statement prefixes the router
// understands. Classification is deliberately shallow: anything
// needing a real parser is out of scope for the routing decision.
var (
	readVerbs  = []string{"SELECT", "SHOW", "EXPLAIN"}
	writeVerbs = []string{"INSERT", "UPDATE", "DELETE", "REPLACE"}
)

// Classify determines whether a statement is a read or a write by its
// leading verb. Unclassifiable statements return ErrMalformedQuery
// before any side effect happens.
func Classify(query string) (QueryKind, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return KindUnknown, fmt.Errorf("%w: empty statement", ErrMalformedQuery)
	}

	verb := strings.ToUpper(trimmed)
	for _, v := range readVerbs {
		if strings.HasPrefix(verb, v+" ") || verb == v {
			return KindRead, nil
		}
	}
	for _, v := range writeVerbs {
		if strings.HasPrefix(verb, v+" ") || verb == v {
			return KindWrite, nil
		}
	}

	return KindUnknown, fmt.Errorf("%w: unrecognized statement verb", ErrMalformedQuery)
}
