// Package identifier maps between remote fully-qualified telemetry names
// and the flat keys used to address catalog objects locally.
//
// A qualified name is a slash-delimited path such as "/Sat/Temp". The
// local key is the same string with every path separator replaced by a
// tilde ("~Sat~Temp"), a character that cannot occur in a qualified-name
// segment. The mapping is a bijection: ToQualifiedName(ToKey(q)) == q for
// every legal qualified name.
package identifier

import (
	"fmt"
	"strings"

	"github.com/c360/groundlink/errors"
)

const (
	// pathSeparator delimits segments in a remote qualified name.
	pathSeparator = "/"
	// keySeparator replaces pathSeparator in local keys.
	keySeparator = "~"
)

// ToKey converts a remote qualified name to its local key.
func ToKey(qualifiedName string) string {
	return strings.ReplaceAll(qualifiedName, pathSeparator, keySeparator)
}

// ToQualifiedName converts a local key back to the remote qualified name.
// It returns ErrMalformedIdentifier if key was not produced by ToKey:
// keys never contain a path separator and, because qualified names are
// rooted, always begin with the key separator.
func ToQualifiedName(key string) (string, error) {
	if strings.Contains(key, pathSeparator) {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %q contains %q", errors.ErrMalformedIdentifier, key, pathSeparator),
			"identifier", "ToQualifiedName", "validate key")
	}
	if !strings.HasPrefix(key, keySeparator) {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %q lacks leading %q", errors.ErrMalformedIdentifier, key, keySeparator),
			"identifier", "ToQualifiedName", "validate key")
	}
	return strings.ReplaceAll(key, keySeparator, pathSeparator), nil
}

// ParentQualifiedName returns the qualified name truncated at its last
// path separator, locating the folder that owns the named object.
// The root itself has no parent; ok is false in that case.
func ParentQualifiedName(qualifiedName string) (parent string, ok bool) {
	idx := strings.LastIndex(qualifiedName, pathSeparator)
	if idx <= 0 {
		return "", false
	}
	return qualifiedName[:idx], true
}
