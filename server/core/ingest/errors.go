package ingest

import "errors"

// Kind classifies why an upload failed.
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindMissingIdentity
	KindInvalidIdentifier
	KindBadPayload
	KindPayloadTooLarge
	KindStorage
	KindTransform
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindMissingIdentity:
		return "missing identity"
	case KindInvalidIdentifier:
		return "invalid identifier"
	case KindBadPayload:
		return "bad payload"
	case KindPayloadTooLarge:
		return "payload too large"
	case KindStorage:
		return "storage error"
	case KindTransform:
		return "transform error"
	default:
		return "unknown"
	}
}

// Error is the terminal failure of an upload.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the failure kind of err, or 0 when err did not come from the pipeline.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
