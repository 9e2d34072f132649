// Package errs defines the error taxonomy shared by every KnowCode
// subsystem. Errors are tagged with a Kind rather than represented as
// distinct Go types, so callers can branch on errors.As without importing
// every producing package.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and recovery policy.
type Kind string

const (
	// IOError covers file, network, and permission failures.
	IOError Kind = "IO_ERROR"
	// ParseError is per-file and non-fatal; the caller accumulates it.
	ParseError Kind = "PARSE_ERROR"
	// SchemaMismatch signals version skew on load; fatal for that artifact.
	SchemaMismatch Kind = "SCHEMA_MISMATCH"
	// EmbeddingFailure is per-batch and isolates the affected chunks.
	EmbeddingFailure Kind = "EMBEDDING_FAILURE"
	// IndexInconsistent covers orphaned vectors or missing chunks; the
	// loader prunes and logs rather than failing outright.
	IndexInconsistent Kind = "INDEX_INCONSISTENT"
	// BudgetOverflow means the requested context exceeds the token budget;
	// recovered by truncation.
	BudgetOverflow Kind = "BUDGET_OVERFLOW"
	// RetrievalEmpty means no results were found; a valid low-sufficiency
	// bundle is still returned.
	RetrievalEmpty Kind = "RETRIEVAL_EMPTY"
	// DeadlineExceeded means an operation's deadline expired; a partial
	// result is returned when one is well-defined.
	DeadlineExceeded Kind = "DEADLINE_EXCEEDED"
)

// KindError wraps an underlying error with a Kind and an optional subject
// (file path, chunk id, entity id) identifying what failed.
type KindError struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *KindError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Subject, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// Is supports errors.Is(err, SomeKindError) comparisons by Kind alone: the
// target KindError's Subject and Err are not compared.
func (e *KindError) Is(target error) bool {
	var ke *KindError
	if !errors.As(target, &ke) {
		return false
	}
	return ke.Kind == e.Kind
}

// New wraps err with kind and an empty subject.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// Newf formats a message and wraps it with kind.
func Newf(kind Kind, subject string, format string, args ...any) error {
	return &KindError{Kind: kind, Subject: subject, Err: fmt.Errorf(format, args...)}
}

// Wrap tags an existing error with kind and subject for a specific file,
// chunk, or entity.
func Wrap(kind Kind, subject string, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Subject: subject, Err: err}
}

// KindOf extracts the Kind from err, if any, and reports whether one was
// found.
func KindOf(err error) (Kind, bool) {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}

// Sentinel returns a Kind-only error usable as an errors.Is target, e.g.
// errors.Is(err, errs.Sentinel(errs.SchemaMismatch)).
func Sentinel(kind Kind) error {
	return &KindError{Kind: kind, Err: errors.New(string(kind))}
}
