// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
)

// Kind classifies an Error without binding callers to a specific
// underlying type. Callers match on Kind via [KindOf] rather than type
// assertion, mirroring the taxonomy of errors a relational-store-backed
// archiver can produce: filesystem failures, store failures, codec
// failures, and format-level mismatches.
type Kind int

const (
	// Unspecified is never returned; it is the zero value of Kind.
	Unspecified Kind = iota
	// IOError indicates a traversal, read, write, or metadata syscall failed.
	IOError
	// StoreError indicates the underlying relational store reported a
	// failure, including constraint violations and transaction failures.
	StoreError
	// CodecErr indicates the Zstandard codec rejected input it was asked
	// to compress.
	CodecErr
	// CorruptBundle indicates a decompressed length mismatched the
	// recorded itemcontent ranges, or the codec rejected a bundle's bytes.
	CorruptBundle
	// SchemaMismatch indicates the opened file is not an archive of this
	// format.
	SchemaMismatch
	// NotFound indicates a requested path does not resolve to any item.
	NotFound
	// UnsupportedFeature indicates an operation such as symlink creation
	// is unavailable on the current platform.
	UnsupportedFeature
	// IncompleteFile indicates extraction finished without fully tiling
	// an output file's byte range.
	IncompleteFile
	// Aborted indicates cancellation was requested mid-operation.
	Aborted
	// InvariantViolation indicates verify found a structural defect in
	// the item forest: a parent cycle, a duplicate sibling name, or a
	// non-gapless byte-range tiling.
	InvariantViolation
)

func (k Kind) String() string {
	switch k {
	case IOError:
		return "IoError"
	case StoreError:
		return "StoreError"
	case CodecErr:
		return "CodecError"
	case CorruptBundle:
		return "CorruptBundle"
	case SchemaMismatch:
		return "SchemaMismatch"
	case NotFound:
		return "NotFound"
	case UnsupportedFeature:
		return "UnsupportedFeature"
	case IncompleteFile:
		return "IncompleteFile"
	case Aborted:
		return "Aborted"
	case InvariantViolation:
		return "InvariantViolation"
	default:
		return "Unspecified"
	}
}

// Error is the error type returned by every exported function in this
// package. Op identifies the failing operation (e.g. "pack", "extract",
// "lookup") for diagnostics; Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, &archive.Error{Kind: archive.NotFound}) matches any
// NotFound error. Kind itself implements no Error method and cannot be
// passed to errors.Is directly; compare [KindOf] results or use the
// helpers below instead.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of the first *Error in err's chain, or
// Unspecified if err is nil or no error in its chain was produced by
// this package.
func KindOf(err error) Kind {
	if err == nil {
		return Unspecified
	}
	var as *Error
	if errors.As(err, &as) {
		return as.Kind
	}
	return Unspecified
}

// IsNotFound reports whether err (or a wrapped cause) is a NotFound error.
func IsNotFound(err error) bool { return KindOf(err) == NotFound }

// IsUnsupportedFeature reports whether err is an UnsupportedFeature error.
func IsUnsupportedFeature(err error) bool { return KindOf(err) == UnsupportedFeature }
