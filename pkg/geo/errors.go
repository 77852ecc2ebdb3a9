package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrEmptyGeometry indicates an operation that needs coordinates was given
// an empty geometry.
var ErrEmptyGeometry = errors.New("empty geometry")

// FormatError indicates an unreadable or malformed input file.
type FormatError struct {
	Op   string
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: invalid format: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: invalid format: %v", e.Op, e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// CRSError indicates a missing, unresolvable or mismatched coordinate
// reference system.
type CRSError struct {
	Op     string
	CRS    string
	Reason string
}

func (e *CRSError) Error() string {
	if e.CRS == "" {
		return fmt.Sprintf("%s: crs: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: crs %q: %s", e.Op, e.CRS, e.Reason)
}

// ProjectionError indicates no transform path exists between two CRSs.
type ProjectionError struct {
	From   string
	To     string
	Reason string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("no transform from %s to %s: %s", e.From, e.To, e.Reason)
}

// UnitMismatchError indicates a linear operation on angular-unit data.
type UnitMismatchError struct {
	Op   string
	CRS  string
	Unit string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("%s: %s uses %s units, reproject to a projected CRS first",
		e.Op, e.CRS, e.Unit)
}

// DisjointExtentError indicates a requested extent does not overlap the data.
type DisjointExtentError struct {
	Op     string
	Extent orb.Bound
	BBox   orb.Bound
}

func (e *DisjointExtentError) Error() string {
	return fmt.Sprintf("%s: bbox [%g %g %g %g] does not overlap extent [%g %g %g %g]",
		e.Op,
		e.BBox.Min[0], e.BBox.Min[1], e.BBox.Max[0], e.BBox.Max[1],
		e.Extent.Min[0], e.Extent.Min[1], e.Extent.Max[0], e.Extent.Max[1])
}

// IncompatibleCastError indicates an impossible geometry type conversion.
type IncompatibleCastError struct {
	From   string
	To     string
	Reason string
}

func (e *IncompatibleCastError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot cast %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot cast %s to %s: %s", e.From, e.To, e.Reason)
}

// UnsupportedFormatError indicates an unknown file or payload format.
type UnsupportedFormatError struct {
	Op     string
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: unsupported format %q", e.Op, e.Format)
}

// ServiceUnavailableError indicates a remote fetch failed after retries.
type ServiceUnavailableError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("service %s unavailable after %d attempt(s): %v",
		e.Endpoint, e.Attempts, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// SchemaMismatchError indicates a remote payload violates the expected shape.
type SchemaMismatchError struct {
	Endpoint string
	Field    string
	Expected string
	Got      string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("service %s: %s mismatch: expected %s, got %s",
		e.Endpoint, e.Field, e.Expected, e.Got)
}

// CancelledError indicates the caller cancelled an operation or its
// deadline passed. It unwraps to the context error.
type CancelledError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s %s: cancelled: %v", e.Op, e.Endpoint, e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }
