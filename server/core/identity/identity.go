// Package identity turns the identifiers cameras present into comparison keys
// and filesystem-safe directory names.
package identity

import (
	"strings"
)

// MaxStorageLength bounds a sanitized identifier so it stays a sensible directory name.
const MaxStorageLength = 64

// keyPrefix keeps generated registry keys clear of reserved entries such as "_example_".
const keyPrefix = "cam_"

var comparisonStripper = strings.NewReplacer(":", "", "-", "", " ", "")

// NormalizeForComparison uppercases id and strips colons, hyphens and spaces.
func NormalizeForComparison(id string) string {
	return comparisonStripper.Replace(strings.ToUpper(id))
}

// Equivalent reports whether two presented identifiers name the same device.
func Equivalent(a, b string) bool {
	return NormalizeForComparison(a) == NormalizeForComparison(b)
}

// SanitizeForStorage maps id onto [A-Za-z0-9_-]: colons become hyphens and every
// other disallowed character (per rune) becomes an underscore.
// Sanitizing an already sanitized value returns it unchanged.
func SanitizeForStorage(id string) (string, error) {
	if id == "" {
		return "", NewInvalidIdentifierError(id, "identifier is empty")
	}

	var b strings.Builder
	b.Grow(len(id))
	hasAlnum := false
	for _, r := range id {
		switch {
		case r == ':':
			b.WriteByte('-')
		case isAlnum(r):
			hasAlnum = true
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	sanitized := b.String()
	if !hasAlnum {
		return "", NewInvalidIdentifierError(id, "identifier has no letters or digits")
	}
	if len(sanitized) > MaxStorageLength {
		return "", NewInvalidIdentifierError(id, "identifier is longer than 64 characters")
	}
	return sanitized, nil
}

// StorageKey derives the registry key for id: "cam_" followed by the lowercased
// sanitized identifier without hyphens.
func StorageKey(id string) (string, error) {
	sanitized, err := SanitizeForStorage(id)
	if err != nil {
		return "", err
	}
	return keyPrefix + strings.ToLower(strings.ReplaceAll(sanitized, "-", "")), nil
}

// LooksLikeMac reports whether id is six two-digit hex groups, either unseparated
// or separated uniformly by ':' or '-'.
func LooksLikeMac(id string) bool {
	switch len(id) {
	case 12:
		for i := 0; i < len(id); i++ {
			if !isHex(id[i]) {
				return false
			}
		}
		return true
	case 17:
		sep := id[2]
		if sep != ':' && sep != '-' {
			return false
		}
		for i := 0; i < len(id); i++ {
			if i%3 == 2 {
				if id[i] != sep {
					return false
				}
				continue
			}
			if !isHex(id[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// DefaultTitle is the title given to a newly provisioned camera: the last eight
// characters of a MAC address, otherwise the identifier as presented.
func DefaultTitle(id string) string {
	if LooksLikeMac(id) {
		return id[len(id)-8:]
	}
	return id
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
