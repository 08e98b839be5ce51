package esq

import (
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

// ErrorKind classifies the failures surfaced by the query compiler,
// the materializer and the search backend.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindBackendCallFailed is returned when the search engine answers
	// with an unsuccessful response.
	KindBackendCallFailed
	// KindIndexNotFound is the backend failure for a missing index.
	// It also matches ErrBackendCallFailed.
	KindIndexNotFound
	// KindUnsupportedOperation is returned when a terminal, an aggregate
	// method or an expression node has no mapping to the query DSL.
	KindUnsupportedOperation
	// KindMissingMetadata is returned when a document type has no
	// index declaration.
	KindMissingMetadata
	// KindMalformedProjection is returned when a bucket key cannot be
	// decoded into the requested result shape.
	KindMalformedProjection
)

func (k ErrorKind) String() string {
	switch k {
	case KindBackendCallFailed:
		return "backend call failed"
	case KindIndexNotFound:
		return "index not found"
	case KindUnsupportedOperation:
		return "unsupported operation"
	case KindMissingMetadata:
		return "missing metadata"
	case KindMalformedProjection:
		return "malformed projection"
	default:
		return "unknown error"
	}
}

// Sentinel errors for use with errors.Is.
//
// Example:
//
//	_, err := q.Count(ctx)
//	if errors.Is(err, esq.ErrUnsupportedOperation) {
//	    // The query uses an operator the compiler cannot translate
//	}
var (
	ErrBackendCallFailed    = &Error{Kind: KindBackendCallFailed}
	ErrIndexNotFound        = &Error{Kind: KindIndexNotFound}
	ErrUnsupportedOperation = &Error{Kind: KindUnsupportedOperation}
	ErrMissingMetadata      = &Error{Kind: KindMissingMetadata}
	ErrMalformedProjection  = &Error{Kind: KindMalformedProjection}
)

// Error is the typed failure returned by every package of the module.
//
// Op names the operation, node or terminal that failed. Diagnostic carries
// the text reported by the search engine, when there is one.
type Error struct {
	Kind       ErrorKind
	Op         string
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Op)
	}
	if e.Diagnostic != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Diagnostic)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by kind, so any *Error compares equal to the
// sentinel of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindBackendCallFailed && e.Kind == KindIndexNotFound
}

// Unsupported returns an UnsupportedOperation error naming op.
func Unsupported(op string, args ...any) error {
	if len(args) > 0 {
		op = fmt.Sprintf(op, args...)
	}
	return &Error{Kind: KindUnsupportedOperation, Op: op}
}

// MissingMetadata returns a MissingMetadata error for a document type.
func MissingMetadata(typeName string) error {
	return &Error{Kind: KindMissingMetadata, Op: typeName}
}

// Malformed returns a MalformedProjection error.
func Malformed(format string, args ...any) error {
	return &Error{Kind: KindMalformedProjection, Op: fmt.Sprintf(format, args...)}
}

const indexNotFoundType = "index_not_found_exception"

// backendError translates a client error into the module's taxonomy.
func backendError(op string, err error) error {
	if err == nil {
		return nil
	}

	var esErr *types.ElasticsearchError
	if errors.As(err, &esErr) {
		kind := KindBackendCallFailed
		if esErr.ErrorCause.Type == indexNotFoundType {
			kind = KindIndexNotFound
		}

		diagnostic := esErr.ErrorCause.Type
		if esErr.ErrorCause.Reason != nil {
			diagnostic = fmt.Sprintf("%s: %s", diagnostic, *esErr.ErrorCause.Reason)
		}

		return &Error{
			Kind:       kind,
			Op:         op,
			Diagnostic: diagnostic,
			Err:        err,
		}
	}

	return &Error{Kind: KindBackendCallFailed, Op: op, Err: err}
}
