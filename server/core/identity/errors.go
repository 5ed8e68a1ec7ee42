package identity

import "errors"

// InvalidIdentifierError reports a device identifier that cannot be turned into a storage token.
type InvalidIdentifierError struct {
	Identifier string
	Reason     string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid device identifier " + quote(e.Identifier) + ": " + e.Reason
}

func NewInvalidIdentifierError(id, reason string) error {
	return &InvalidIdentifierError{Identifier: id, Reason: reason}
}

func IsInvalidIdentifierError(err error) bool {
	var target *InvalidIdentifierError
	return errors.As(err, &target)
}

func quote(s string) string {
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return "\"" + s + "\""
}
