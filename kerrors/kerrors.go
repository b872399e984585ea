// Package kerrors defines the error kinds produced by the scanning engine.
// Each kind is a concrete Go type so callers can discriminate with
// errors.As instead of string matching; Wrap composes them with
// github.com/grailbio/base/errors the way errors bubbling up from worker
// goroutines get annotated elsewhere in this module.
package kerrors

import (
	goerrors "errors"
	"fmt"

	"github.com/grailbio/base/errors"
)

// MalformedRecord reports a FASTQ record that violates the four-line
// grammar. Offset is the byte position of the record's identifier line.
type MalformedRecord struct {
	Offset int64
	Reason string
}

func (e *MalformedRecord) Error() string {
	return fmt.Sprintf("malformed record at offset %d: %s", e.Offset, e.Reason)
}

// UnknownEncoding reports quality bytes outside the printable ASCII range
// declared by every known vendor variant.
type UnknownEncoding struct {
	Min, Max byte
}

func (e *UnknownEncoding) Error() string {
	return fmt.Sprintf("quality bytes %q..%q match no known PHRED encoding", e.Min, e.Max)
}

// AmbiguousEncoding reports candidate vendor variants that disagree on the
// PHRED offset.
type AmbiguousEncoding struct {
	Variants []string
}

func (e *AmbiguousEncoding) Error() string {
	return fmt.Sprintf("PHRED encoding is ambiguous among variants: %v", e.Variants)
}

// EmptyInput reports a file with zero bytes or no complete records.
type EmptyInput struct {
	Path string
}

func (e *EmptyInput) Error() string {
	return fmt.Sprintf("%s: empty input", e.Path)
}

// Truncated reports EOF reached in the middle of a FASTQ record.
type Truncated struct {
	Offset int64
}

func (e *Truncated) Error() string {
	return fmt.Sprintf("truncated record at offset %d", e.Offset)
}

// IoError reports an OS-level read failure, as opposed to a structural
// problem with the data itself.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return e.Op + ": " + e.Err.Error() }

// Unwrap exposes the underlying OS error to errors.Is/errors.As.
func (e *IoError) Unwrap() error { return e.Err }

// Cancelled reports a scan torn down before completion, e.g. because the
// caller's context expired. Cooperative cancellation via Engine.Stop or
// Engine.Abort does not produce this error; it yields a partial result
// with its Cancelled flag set instead.
type Cancelled struct{}

func (e *Cancelled) Error() string { return "scan cancelled" }

// TemplateConflict reports two templates sharing an identifier but
// disagreeing on base sequence.
type TemplateConflict struct {
	ID string
}

func (e *TemplateConflict) Error() string {
	return fmt.Sprintf("template %q declared twice with differing sequences", e.ID)
}

// Wrap annotates err with a message using github.com/grailbio/base/errors'
// errors.E(err, "context") idiom. It returns nil if err is nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.E(err, context)
}

// IsCancelled reports whether err is (or wraps) a Cancelled error.
func IsCancelled(err error) bool {
	var c *Cancelled
	return goerrors.As(err, &c)
}
