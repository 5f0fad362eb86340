package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the HTTP layer and the rebuild loop can
// decide between retrying, reporting and degrading.
type ErrorKind string

const (
	KindStoreUnavailable ErrorKind = "StoreUnavailable"
	KindBuildFailed      ErrorKind = "BuildFailed"
	KindPersistFailed    ErrorKind = "PersistFailed"
	KindArtifactMissing  ErrorKind = "ArtifactMissing"
	KindBadRequest       ErrorKind = "BadRequest"
	KindUpstream         ErrorKind = "UpstreamServiceError"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrBuildFailed      = &Error{Kind: KindBuildFailed}
	ErrPersistFailed    = &Error{Kind: KindPersistFailed}
	ErrArtifactMissing  = &Error{Kind: KindArtifactMissing}
	ErrBadRequest       = &Error{Kind: KindBadRequest}
	ErrUpstream         = &Error{Kind: KindUpstream}
)

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// E wraps err with a kind and the operation that failed.
func E(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
