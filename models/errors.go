package models

import (
	"errors"
	"fmt"
)

// FetchErrorKind separates retryable fetch failures from structural
// end-of-route signals.
type FetchErrorKind int

const (
	// FetchTransient covers timeouts, navigation failures and the like —
	// retried with backoff, surfaced only once retries are exhausted.
	FetchTransient FetchErrorKind = iota
	// FetchTerminal means the source signalled end-of-results or an
	// anti-automation challenge. Never retried.
	FetchTerminal
)

// FetchError is returned by the fetcher when a page cannot be retrieved.
type FetchError struct {
	Kind     FetchErrorKind
	RouteKey string
	Page     int
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	kind := "transient"
	if e.Kind == FetchTerminal {
		kind = "terminal"
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s page %d: %s (%s): %v", e.RouteKey, e.Page, e.Reason, kind, e.Err)
	}
	return fmt.Sprintf("fetch %s page %d: %s (%s)", e.RouteKey, e.Page, e.Reason, kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTerminalFetch reports whether err is a terminal fetch signal, i.e. the
// route is exhausted and must not be retried.
func IsTerminalFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchTerminal
}

// ParseErrorKind distinguishes an unusable page from a single bad record.
type ParseErrorKind int

const (
	// MalformedPage means the listing container could not be located; the
	// page is skipped and retried on the next run.
	MalformedPage ParseErrorKind = iota
	// MalformedRecord marks a single unparseable record; recovered locally.
	MalformedRecord
)

// ParseError is returned when a page's top-level structure is unusable.
type ParseError struct {
	Kind     ParseErrorKind
	RouteKey string
	Page     int
	Err      error
}

func (e *ParseError) Error() string {
	kind := "malformed page"
	if e.Kind == MalformedRecord {
		kind = "malformed record"
	}
	if e.Err != nil {
		return fmt.Sprintf("parse %s page %d: %s: %v", e.RouteKey, e.Page, kind, e.Err)
	}
	return fmt.Sprintf("parse %s page %d: %s", e.RouteKey, e.Page, kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadErrorKind classifies persistence failures.
type LoadErrorKind int

const (
	ForeignKeyViolation LoadErrorKind = iota
	ConstraintViolation
)

// LoadError is returned by the loader when the store rejects a write.
type LoadError struct {
	Kind  LoadErrorKind
	BusID string
	Err   error
}

func (e *LoadError) Error() string {
	kind := "foreign key violation"
	if e.Kind == ConstraintViolation {
		kind = "constraint violation"
	}
	return fmt.Sprintf("load bus %s: %s: %v", e.BusID, kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
