package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure. Handlers map kinds to HTTP statuses;
// services decide the kind at the point the failure is detected.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindPolicyViolation   Kind = "POLICY_VIOLATION"
	KindStorage           Kind = "STORAGE"
)

// Error is a failure with a machine-readable kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransitionf(format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func PolicyViolationf(format string, args ...any) error {
	return &Error{Kind: KindPolicyViolation, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain. Anything that is not a
// domain.Error is treated as a storage failure: by the time an error reaches
// a caller it has either been classified or it came from the database.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStorage
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
